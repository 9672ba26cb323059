package membership

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/handler"
	"github.com/bhadresh-123/phicore/internal/membership"
	"github.com/bhadresh-123/phicore/internal/middleware"
	"github.com/bhadresh-123/phicore/internal/model"
)

type Handler struct {
	svc      *membership.Service
	validate *validator.Validate
}

func NewHandler(svc *membership.Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/memberships", h.Grant)
	r.POST("/memberships/deactivate", h.Deactivate)
}

type grantRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	Role           string    `json:"role" validate:"required,oneof=owner admin therapist contractor"`

	CanViewAllPatients       bool        `json:"can_view_all_patients"`
	CanViewAllCalendars      bool        `json:"can_view_all_calendars"`
	CanViewSelectedPatients  []uuid.UUID `json:"can_view_selected_patients"`
	CanViewSelectedCalendars []uuid.UUID `json:"can_view_selected_calendars"`
	CanManageBilling         bool        `json:"can_manage_billing"`
	CanManageStaff           bool        `json:"can_manage_staff"`
	CanManageSettings        bool        `json:"can_manage_settings"`
	CanCreatePatients        bool        `json:"can_create_patients"`
	IsPrimaryOwner           bool        `json:"is_primary_owner"`
}

func (h *Handler) Grant(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := &model.OrganizationMembership{
		OrganizationID:           req.OrganizationID,
		UserID:                   req.UserID,
		Role:                     model.Role(req.Role),
		CanViewAllPatients:       req.CanViewAllPatients,
		CanViewAllCalendars:      req.CanViewAllCalendars,
		CanViewSelectedPatients:  req.CanViewSelectedPatients,
		CanViewSelectedCalendars: req.CanViewSelectedCalendars,
		CanManageBilling:         req.CanManageBilling,
		CanManageStaff:           req.CanManageStaff,
		CanManageSettings:        req.CanManageSettings,
		CanCreatePatients:        req.CanCreatePatients,
		IsPrimaryOwner:           req.IsPrimaryOwner,
	}

	if err := h.svc.Grant(c.Request.Context(), callerID, m); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type deactivateRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	UserID         uuid.UUID `json:"user_id" validate:"required"`
}

func (h *Handler) Deactivate(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req deactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Deactivate(c.Request.Context(), callerID, req.OrganizationID, req.UserID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
