package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/internal/middleware"
	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/service/appointment"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/validator"
)

type Handler struct {
	service   *appointment.Service
	validator *validator.Validator
}

func NewHandler(service *appointment.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	appointments := rg.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/confirm", h.ConfirmAppointment)
		appointments.POST("/:id/checkin", h.CheckInAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/no-show", h.MarkNoShow)
		appointments.POST("/:id/reschedule", h.RescheduleAppointment)
	}

	visits := rg.Group("/visits")
	{
		visits.POST("/:id/start", h.StartConsultation)
		visits.POST("/:id/complete", h.CompleteConsultation)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, errors.Validation("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.Error(c, err)
		return
	}

	apt, err := h.service.Create(c.Request.Context(), middleware.Session(c), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": apt})
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid appointment ID", err))
		return
	}

	apt, err := h.service.Get(c.Request.Context(), middleware.Session(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filters := &model.AppointmentFilters{
		Status:   model.AppointmentStatus(c.Query("status")),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}

	for _, raw := range c.QueryArray("department_id") {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Error(c, errors.Validation("invalid department ID", err))
			return
		}
		filters.DepartmentIDs = append(filters.DepartmentIDs, id)
	}
	if raw := c.Query("practitioner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Error(c, errors.Validation("invalid practitioner ID", err))
			return
		}
		filters.PractitionerID = id
	}
	if raw := c.Query("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Error(c, errors.Validation("invalid patient ID", err))
			return
		}
		filters.PatientID = id
	}

	appointments, err := h.service.List(c.Request.Context(), middleware.Session(c), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": appointments})
}

func (h *Handler) ConfirmAppointment(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) CheckInAppointment(c *gin.Context) {
	h.transition(c, h.service.CheckIn)
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	h.transition(c, h.service.MarkNoShow)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid appointment ID", err))
		return
	}

	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, errors.Validation("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.Error(c, err)
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), middleware.Session(c), id, req.Reason)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid appointment ID", err))
		return
	}

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, errors.Validation("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.Error(c, err)
		return
	}

	successor, err := h.service.Reschedule(c.Request.Context(), middleware.Session(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": successor})
}

func (h *Handler) StartConsultation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid visit ID", err))
		return
	}

	force := c.Query("force") == "true"
	visit, err := h.service.StartConsultation(c.Request.Context(), middleware.Session(c), id, force)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": visit})
}

func (h *Handler) CompleteConsultation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid visit ID", err))
		return
	}

	visit, err := h.service.Complete(c.Request.Context(), middleware.Session(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": visit})
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, sess *model.SessionContext, id uuid.UUID) (*model.Appointment, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid appointment ID", err))
		return
	}

	apt, err := op(c.Request.Context(), middleware.Session(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}
