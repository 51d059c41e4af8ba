package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/opd-api/internal/model"
	apperrors "github.com/medicore/opd-api/pkg/errors"
)

func session(depts ...uuid.UUID) *model.SessionContext {
	return &model.SessionContext{
		TenantID:      uuid.New(),
		UserID:        uuid.New(),
		DepartmentIDs: depts,
		Capabilities:  []model.Capability{model.CapQueueRead, model.CapAppointmentRead},
	}
}

func TestAuthorize(t *testing.T) {
	svc := NewService(nil)
	sess := session()

	assert.NoError(t, svc.Authorize(sess, model.CapQueueRead))

	err := svc.Authorize(sess, model.CapAppointmentWrite)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrPermissionDenied, apperrors.CodeOf(err))
}

func TestAuthorizeSuperAdminStillNeedsCapability(t *testing.T) {
	svc := NewService(nil)
	sess := session()
	sess.SuperAdmin = true

	// Super-admin bypasses department scoping only.
	assert.Error(t, svc.Authorize(sess, model.CapQueueManage))
}

func TestVerifyDepartmentAccess(t *testing.T) {
	svc := NewService(nil)
	cardiology := uuid.New()
	neurology := uuid.New()
	sess := session(cardiology)

	assert.True(t, svc.VerifyDepartmentAccess(sess, cardiology))
	assert.False(t, svc.VerifyDepartmentAccess(sess, neurology))

	sess.SuperAdmin = true
	assert.True(t, svc.VerifyDepartmentAccess(sess, neurology))
}

func TestVerifyRecordAccessTenantCheckedFirst(t *testing.T) {
	svc := NewService(nil)
	dept := uuid.New()
	sess := session(dept)

	// Wrong tenant AND wrong department: tenant violation wins.
	err := svc.VerifyRecordAccess(sess, uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCrossTenantAccess, apperrors.CodeOf(err))

	err = svc.VerifyRecordAccess(sess, sess.TenantID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDeptAccessDenied, apperrors.CodeOf(err))

	assert.NoError(t, svc.VerifyRecordAccess(sess, sess.TenantID, dept))
}

func TestScopeDepartmentsRejectsUnassigned(t *testing.T) {
	svc := NewService(nil)
	cardiology := uuid.New()
	neurology := uuid.New()
	sess := session(cardiology)

	// A Cardiology user asking for Neurology gets an access error, not an
	// empty list.
	_, err := svc.ScopeDepartments(sess, []uuid.UUID{neurology})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDeptAccessDenied, apperrors.CodeOf(err))
}

func TestScopeDepartmentsDefaultsToAssignedSet(t *testing.T) {
	svc := NewService(nil)
	cardiology := uuid.New()
	sess := session(cardiology)

	scoped, err := svc.ScopeDepartments(sess, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cardiology}, scoped)
}

func TestScopeDepartmentsFailClosed(t *testing.T) {
	svc := NewService(nil)
	sess := session() // zero assigned departments

	scoped, err := svc.ScopeDepartments(sess, nil)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, uuid.Nil, scoped[0], "must match nothing, not everything")
}

func TestScopeDepartmentsSuperAdminUnconstrained(t *testing.T) {
	svc := NewService(nil)
	sess := session()
	sess.SuperAdmin = true

	scoped, err := svc.ScopeDepartments(sess, nil)
	require.NoError(t, err)
	assert.Empty(t, scoped)

	anyDept := uuid.New()
	scoped, err = svc.ScopeDepartments(sess, []uuid.UUID{anyDept})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{anyDept}, scoped)
}
