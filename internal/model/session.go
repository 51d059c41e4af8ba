package model

import (
	"github.com/google/uuid"
)

// Capability is a typed permission code. Using constants instead of free
// strings keeps authorization decisions checkable at compile time.
type Capability string

const (
	CapAppointmentRead   Capability = "appointment:read"
	CapAppointmentWrite  Capability = "appointment:write"
	CapQueueRead         Capability = "queue:read"
	CapQueueManage       Capability = "queue:manage"
	CapAvailabilityRead  Capability = "availability:read"
	CapAvailabilityWrite Capability = "availability:write"
)

// SessionContext is the already-authenticated caller context supplied by the
// session provider. This service trusts it; issuing and refreshing tokens is
// someone else's job.
type SessionContext struct {
	TenantID      uuid.UUID    `json:"tenant_id"`
	UserID        uuid.UUID    `json:"user_id"`
	DepartmentIDs []uuid.UUID  `json:"department_ids"`
	Capabilities  []Capability `json:"capabilities"`
	SuperAdmin    bool         `json:"super_admin"`
}

// HasCapability reports whether the session carries the capability.
// Super-admin bypasses department scoping, not capability checks.
func (s *SessionContext) HasCapability(c Capability) bool {
	for _, got := range s.Capabilities {
		if got == c {
			return true
		}
	}
	return false
}

// AssignedTo reports whether the department is in the session's assigned set.
func (s *SessionContext) AssignedTo(departmentID uuid.UUID) bool {
	for _, id := range s.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}
