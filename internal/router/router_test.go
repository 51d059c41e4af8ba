package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/opd-api/internal/handler"
	appointmentHandler "github.com/medicore/opd-api/internal/handler/appointment"
	availabilityHandler "github.com/medicore/opd-api/internal/handler/availability"
	queueHandler "github.com/medicore/opd-api/internal/handler/queue"
	"github.com/medicore/opd-api/internal/middleware"
	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository/memory"
	"github.com/medicore/opd-api/internal/service/access"
	appointmentService "github.com/medicore/opd-api/internal/service/appointment"
	auditService "github.com/medicore/opd-api/internal/service/audit"
	availabilityService "github.com/medicore/opd-api/internal/service/availability"
	queueService "github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/auth"
	"github.com/medicore/opd-api/pkg/logger"
	"github.com/medicore/opd-api/pkg/validator"
)

const testSecret = "test-secret"

type apiFixture struct {
	engine *gin.Engine

	tenantID       uuid.UUID
	departmentID   uuid.UUID
	practitionerID uuid.UUID
	patientID      uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	master := memory.NewMasterRepository()
	appts := memory.NewAppointmentRepository()
	visits := memory.NewVisitRepository()
	queueRepo := memory.NewQueueRepository(visits)
	availabilityRepo := memory.NewAvailabilityRepository()
	auditRepo := memory.NewAuditRepository()

	f := &apiFixture{
		tenantID:       uuid.New(),
		departmentID:   uuid.New(),
		practitionerID: uuid.New(),
		patientID:      uuid.New(),
	}

	master.Departments[f.departmentID] = &model.Department{
		Base:   model.Base{ID: f.departmentID, TenantID: f.tenantID},
		Name:   "General Medicine",
		Active: true,
	}
	master.Practitioners[f.practitionerID] = &model.Practitioner{
		Base:         model.Base{ID: f.practitionerID, TenantID: f.tenantID},
		Name:         "Dr. Rao",
		DepartmentID: f.departmentID,
		Status:       model.PractitionerActive,
	}
	master.Patients[f.patientID] = &model.Patient{
		Base: model.Base{ID: f.patientID, TenantID: f.tenantID},
		Name: "Asha Verma",
		MRN:  "MRN-1001",
	}

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	guard := access.NewService(master.DepartmentView())
	auditor := auditService.NewService(auditRepo, log)
	queueSvc := queueService.NewService(
		queueRepo, visits, master, master.DepartmentView(),
		master.PatientView(), guard, log, nil)
	appointmentSvc := appointmentService.NewService(
		appts, visits, master, guard, queueSvc, auditor, nil)
	availabilitySvc := availabilityService.NewService(
		availabilityRepo, appts, master, master.DepartmentView(), guard)

	v := validator.New()
	authMW := middleware.NewAuthMiddleware(auth.NewVerifier(testSecret))

	r := NewRouter(
		authMW,
		nil,
		appointmentHandler.NewHandler(appointmentSvc, v),
		availabilityHandler.NewHandler(availabilitySvc, v),
		queueHandler.NewHandler(queueSvc),
		handler.NewHandler(nil, nil),
	)
	r.Setup()
	f.engine = r.Engine()
	return f
}

func (f *apiFixture) token(t *testing.T) string {
	t.Helper()
	claims := auth.SessionClaims{
		TenantID:      f.tenantID.String(),
		DepartmentIDs: []string{f.departmentID.String()},
		Capabilities: []string{
			string(model.CapAppointmentRead),
			string(model.CapAppointmentWrite),
			string(model.CapQueueRead),
			string(model.CapAvailabilityRead),
			string(model.CapAvailabilityWrite),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestAPI(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t)
	date := time.Now().AddDate(0, 0, 7).Format(model.DateOnly)

	createBody := gin.H{
		"patient_id":      f.patientID,
		"practitioner_id": f.practitionerID,
		"department_id":   f.departmentID,
		"scheduled_date":  date,
		"start_time":      "10:00",
		"source":          "reception",
	}

	t.Run("requires bearer token", func(t *testing.T) {
		w := f.do(t, "", http.MethodGet, "/api/v1/queue", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a bad token", func(t *testing.T) {
		w := f.do(t, "not-a-token", http.MethodGet, "/api/v1/queue", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	var appointmentID, visitID string
	t.Run("book checkin and view queue", func(t *testing.T) {
		w := f.do(t, token, http.MethodPost, "/api/v1/appointments", createBody)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var created struct {
			Data model.Appointment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		appointmentID = created.Data.ID.String()
		assert.Equal(t, model.AppointmentStatusBooked, created.Data.Status)
		assert.Equal(t, 1, created.Data.TokenNumber)

		w = f.do(t, token, http.MethodPost, "/api/v1/appointments/"+appointmentID+"/checkin", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var checkedIn struct {
			Data model.Appointment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkedIn))
		require.NotNil(t, checkedIn.Data.VisitID)
		visitID = checkedIn.Data.VisitID.String()

		w = f.do(t, token, http.MethodGet, "/api/v1/queue", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var page struct {
			Data model.QueuePage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		require.Len(t, page.Data.Items, 1)
		assert.Equal(t, visitID, page.Data.Items[0].VisitID.String())
		assert.Equal(t, "Dr. Rao", page.Data.Items[0].PractitionerName)
	})

	t.Run("double booking maps to conflict", func(t *testing.T) {
		w := f.do(t, token, http.MethodPost, "/api/v1/appointments", createBody)
		require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

		var resp struct {
			Status string `json:"status"`
			Code   string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "SLOT_CONFLICT", resp.Code)
	})

	t.Run("start and complete consultation", func(t *testing.T) {
		w := f.do(t, token, http.MethodPost, "/api/v1/visits/"+visitID+"/start", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = f.do(t, token, http.MethodPost, "/api/v1/visits/"+visitID+"/complete", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = f.do(t, token, http.MethodGet, "/api/v1/queue", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var page struct {
			Data model.QueuePage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Empty(t, page.Data.Items)
	})

	t.Run("availability round trip", func(t *testing.T) {
		w := f.do(t, token, http.MethodPost, "/api/v1/availability/bulk", gin.H{
			"practitioner_id": f.practitionerID,
			"department_id":   f.departmentID,
			"days_of_week":    []int{1, 3},
			"window": gin.H{
				"start_time":   "09:00",
				"end_time":     "11:00",
				"slot_minutes": 30,
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		nextMonday := time.Now()
		for nextMonday.Weekday() != time.Monday {
			nextMonday = nextMonday.AddDate(0, 0, 1)
		}
		path := fmt.Sprintf("/api/v1/practitioners/%s/slots?date=%s",
			f.practitionerID, nextMonday.Format(model.DateOnly))
		w = f.do(t, token, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Data struct {
				Slots []model.Slot `json:"slots"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Data.Slots, 4)
	})

	t.Run("validation error body", func(t *testing.T) {
		w := f.do(t, token, http.MethodPost, "/api/v1/appointments", gin.H{
			"patient_id": f.patientID,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	})
}
