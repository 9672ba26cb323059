package resource

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/access"
	"github.com/bhadresh-123/phicore/internal/handler"
	"github.com/bhadresh-123/phicore/internal/middleware"
	"github.com/bhadresh-123/phicore/internal/model"
)

// Handler is the thin HTTP surface over the access gate. It parses and
// validates requests; every authorization, PHI and audit decision lives in
// the gate.
type Handler struct {
	gate     *access.Gate
	validate *validator.Validate
}

func NewHandler(gate *access.Gate) *Handler {
	return &Handler{
		gate:     gate,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/resources", h.Create)
	r.GET("/resources/search", h.Search)
	r.GET("/resources/:id", h.Get)
	r.PATCH("/resources/:id", h.Update)
	r.DELETE("/resources/:id", h.Delete)
}

type createRequest struct {
	OrganizationID   uuid.UUID         `json:"organization_id" validate:"required"`
	Type             string            `json:"type" validate:"required,oneof=patient clinician session treatment_plan"`
	PrimaryStaffID   *uuid.UUID        `json:"primary_staff_id"`
	AssignedStaffIDs []uuid.UUID       `json:"assigned_staff_ids"`
	Status           string            `json:"status"`
	BillingAmount    int64             `json:"billing_amount"`
	Fields           map[string]string `json:"fields"`
}

func (h *Handler) Create(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := &model.ProtectedResource{
		OrganizationID:   req.OrganizationID,
		Type:             model.ResourceType(req.Type),
		PrimaryStaffID:   req.PrimaryStaffID,
		AssignedStaffIDs: req.AssignedStaffIDs,
		Status:           req.Status,
		BillingAmount:    req.BillingAmount,
	}

	view, err := h.gate.WriteProtected(c.Request.Context(), res, toBag(req.Fields), callerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) Get(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	view, err := h.gate.ReadProtected(c.Request.Context(), id, callerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateRequest struct {
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

func (h *Handler) Update(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.gate.WriteProtected(c.Request.Context(), &model.ProtectedResource{Base: model.Base{ID: id}}, toBag(req.Fields), callerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Delete(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if err := h.gate.DeleteProtected(c.Request.Context(), id, callerID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type searchRequest struct {
	Type  string `form:"type" validate:"required,oneof=patient clinician session treatment_plan"`
	Field string `form:"field" validate:"required"`
	Query string `form:"q" validate:"required"`
}

func (h *Handler) Search(c *gin.Context) {
	callerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	views, err := h.gate.SearchBy(c.Request.Context(), model.ResourceType(req.Type), model.FieldName(req.Field), req.Query, callerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": views})
}

func toBag(fields map[string]string) model.PlaintextBag {
	bag := make(model.PlaintextBag, len(fields))
	for k, v := range fields {
		bag[model.FieldName(k)] = v
	}
	return bag
}
