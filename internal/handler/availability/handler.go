package availability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/internal/middleware"
	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/service/availability"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/validator"
)

type Handler struct {
	service   *availability.Service
	validator *validator.Validator
}

func NewHandler(service *availability.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/practitioners/:id/slots", h.GetDaySlots)
	rg.POST("/availability/bulk", h.BulkCreate)
}

// GetDaySlots returns the computed slot sequence for one practitioner and
// date, booked and blocked slots included.
func (h *Handler) GetDaySlots(c *gin.Context) {
	practitionerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid practitioner ID", err))
		return
	}

	date, err := time.Parse(model.DateOnly, c.Query("date"))
	if err != nil {
		handler.Error(c, errors.Validation("invalid or missing date, expected YYYY-MM-DD", err))
		return
	}

	slots, err := h.service.GetDoctorDaySlots(c.Request.Context(), middleware.Session(c), practitionerID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{
		"practitioner_id": practitionerID,
		"date":            date.Format(model.DateOnly),
		"slots":           slots,
	}})
}

func (h *Handler) BulkCreate(c *gin.Context) {
	var req model.BulkAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, errors.Validation("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.Error(c, err)
		return
	}

	templates, err := h.service.BulkCreateAvailability(c.Request.Context(), middleware.Session(c), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": templates})
}
