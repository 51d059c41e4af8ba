package queue

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/internal/middleware"
	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/pagination"
)

type Handler struct {
	service *queue.Service
}

func NewHandler(service *queue.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/queue", h.GetQueue)
}

// GetQueue serves the live OPD queue page for the caller's departments.
func (h *Handler) GetQueue(c *gin.Context) {
	filters := &model.QueueFilters{}

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
	for _, raw := range c.QueryArray("status") {
		filters.Statuses = append(filters.Statuses, model.VisitStatus(raw))
	}

	page := pagination.Page{Cursor: c.Query("cursor")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			handler.Error(c, errors.Validation("invalid limit", err))
			return
		}
		page.Limit = limit
	}

	result, err := h.service.GetQueue(c.Request.Context(), middleware.Session(c), filters, page)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": result})
}
