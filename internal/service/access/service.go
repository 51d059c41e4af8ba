package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/pkg/errors"
)

// Service is the department/tenant access guard. It consumes an
// already-authenticated SessionContext and answers scoping questions; it
// never touches appointment or visit data itself.
type Service struct {
	deptRepo repository.DepartmentRepository
}

func NewService(deptRepo repository.DepartmentRepository) *Service {
	return &Service{deptRepo: deptRepo}
}

// Authorize checks capability membership. Checked before and independently
// of department scoping, so PERMISSION_DENIED and DEPT_ACCESS_DENIED remain
// distinguishable to callers.
func (s *Service) Authorize(sess *model.SessionContext, capability model.Capability) error {
	if !sess.HasCapability(capability) {
		return errors.PermissionDenied(string(capability))
	}
	return nil
}

// VerifyDepartmentAccess reports whether the session may act on the
// department. Super-admin bypasses department scoping, not tenant scoping.
func (s *Service) VerifyDepartmentAccess(sess *model.SessionContext, departmentID uuid.UUID) bool {
	if sess.SuperAdmin {
		return true
	}
	return sess.AssignedTo(departmentID)
}

// VerifyRecordAccess guards a concrete record. Tenant mismatch is checked
// first and signalled distinctly from a department mismatch.
func (s *Service) VerifyRecordAccess(sess *model.SessionContext, tenantID, departmentID uuid.UUID) error {
	if tenantID != sess.TenantID {
		return errors.CrossTenantAccess()
	}
	if !s.VerifyDepartmentAccess(sess, departmentID) {
		return errors.DeptAccessDenied(departmentID)
	}
	return nil
}

// ScopeDepartments resolves the department filter of a list request.
// Requesting a department outside the assigned set is an access error, not
// an empty result. An empty request collapses to the assigned set, and a
// user with zero assignments matches nothing: fail-closed.
func (s *Service) ScopeDepartments(sess *model.SessionContext, requested []uuid.UUID) ([]uuid.UUID, error) {
	if sess.SuperAdmin {
		// Unconstrained predicate; the tenant filter still applies upstream.
		return requested, nil
	}

	if len(requested) == 0 {
		if len(sess.DepartmentIDs) == 0 {
			// Match-nothing sentinel: impossible department id.
			return []uuid.UUID{uuid.Nil}, nil
		}
		return sess.DepartmentIDs, nil
	}

	for _, id := range requested {
		if !sess.AssignedTo(id) {
			return nil, errors.DeptAccessDenied(id)
		}
	}
	return requested, nil
}

// RefreshAssignments reloads the assigned department set from storage, for
// callers holding a long-lived session whose assignments may have changed.
func (s *Service) RefreshAssignments(ctx context.Context, sess *model.SessionContext) error {
	ids, err := s.deptRepo.ListAssignments(ctx, sess.TenantID, sess.UserID)
	if err != nil {
		return err
	}
	sess.DepartmentIDs = ids
	return nil
}
