package device

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

type RegisterDeviceRequest struct {
	EventID string `json:"event_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Mode    string `json:"mode" binding:"required"`
}

func (h *Handler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id, name and mode are required"})
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if req.Mode != ModeCharge && req.Mode != ModeTopUp {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be charge or topup"})
		return
	}

	d, err := h.repo.Register(c.Request.Context(), eventID, req.Name, req.Mode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}

	// API key is shown once, at registration.
	c.JSON(http.StatusCreated, gin.H{"device": d, "api_key": d.APIKey})
}

type AssignBoothRequest struct {
	BoothID int `json:"booth_id" binding:"required"`
}

func (h *Handler) AssignBooth(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("deviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return
	}

	var req AssignBoothRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booth_id is required"})
		return
	}

	if err := h.repo.AssignBooth(c.Request.Context(), id, req.BoothID); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign booth"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "booth assigned"})
}

type SetModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handler) SetMode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("deviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return
	}

	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Mode != ModeCharge && req.Mode != ModeTopUp) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be charge or topup"})
		return
	}

	if err := h.repo.SetMode(c.Request.Context(), id, req.Mode); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set mode"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "mode updated"})
}

func (h *Handler) DisableDevice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("deviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return
	}

	if err := h.repo.Disable(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device disabled"})
}

type CreateBoothRequest struct {
	EventID string `json:"event_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
}

func (h *Handler) CreateBooth(c *gin.Context) {
	var req CreateBoothRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and name are required"})
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	b, err := h.repo.CreateBooth(c.Request.Context(), eventID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booth"})
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBooths(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	booths, err := h.repo.ListBooths(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list booths"})
		return
	}

	c.JSON(http.StatusOK, booths)
}
