package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueueEntry is one row of the denormalized active-queue read model, keyed
// by visit id. It is only ever written by the queue synchronizer; client
// code reads it and nothing else.
type QueueEntry struct {
	VisitID          uuid.UUID     `db:"visit_id" json:"visit_id"`
	TenantID         uuid.UUID     `db:"tenant_id" json:"tenant_id"`
	DepartmentID     uuid.UUID     `db:"department_id" json:"department_id"`
	DepartmentName   string        `db:"department_name" json:"department_name"`
	PractitionerID   uuid.UUID     `db:"practitioner_id" json:"practitioner_id"`
	PractitionerName string        `db:"practitioner_name" json:"practitioner_name"`
	PatientID        uuid.UUID     `db:"patient_id" json:"patient_id"`
	PatientName      string        `db:"patient_name" json:"patient_name"`
	PatientMRN       string        `db:"patient_mrn" json:"patient_mrn"`
	Priority         VisitPriority `db:"priority" json:"priority"`
	PriorityRank     int           `db:"priority_rank" json:"-"`
	Status           VisitStatus   `db:"status" json:"status"`
	TokenNumber      int           `db:"token_number" json:"token_number"`
	CheckInTime      time.Time     `db:"check_in_time" json:"check_in_time"`
	SyncedAt         time.Time     `db:"synced_at" json:"-"`
}

// SortValue encodes the entry's compound (priority rank, check-in time)
// sort key for cursor pagination.
func (e *QueueEntry) SortValue() string {
	return fmt.Sprintf("%d|%s", e.PriorityRank, e.CheckInTime.UTC().Format(time.RFC3339Nano))
}

// ParseQueueSortValue decodes a cursor sort value produced by SortValue.
func ParseQueueSortValue(v string) (rank int, checkIn time.Time, err error) {
	parts := strings.SplitN(v, "|", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("malformed sort value %q", v)
	}
	rank, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, time.Time{}, err
	}
	checkIn, err = time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return 0, time.Time{}, err
	}
	return rank, checkIn, nil
}

type QueueFilters struct {
	DepartmentIDs  []uuid.UUID
	PractitionerID uuid.UUID
	Statuses       []VisitStatus
}

type QueuePage struct {
	Items      []*QueueEntry `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}
