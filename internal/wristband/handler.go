package wristband

import (
	"errors"
	"net/http"
	"strconv"

	"bandpay/internal/event"
	"bandpay/internal/logger"
	"bandpay/internal/tagsig"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo   Repository
	events event.Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		repo:   NewRepository(db),
		events: event.NewRepository(db),
	}
}

type ProvisionRequest struct {
	EventID string   `json:"event_id" binding:"required"`
	UIDs    []string `json:"uids" binding:"required,min=1"`
}

type ProvisionedBand struct {
	Wristband *Wristband `json:"wristband"`
	// Signature for counter 0, written to the tag at provisioning.
	InitialSigHex string `json:"initial_sig_hex"`
}

// Provision registers a batch of physical tags for an event and hands
// back the tag ids plus the counter-0 signatures to burn onto them.
func (h *Handler) Provision(c *gin.Context) {
	var req ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and at least one uid are required"})
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := h.events.GetByID(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
		return
	}

	provisioned := make([]ProvisionedBand, 0, len(req.UIDs))
	for _, uid := range req.UIDs {
		w, err := h.repo.Create(c.Request.Context(), eventID, uid)
		if err != nil {
			logger.WithError(err).Error("failed to provision wristband")
			c.JSON(http.StatusConflict, gin.H{
				"error":       "failed to provision wristband; uid may already exist for this event",
				"uid":         uid,
				"provisioned": provisioned,
			})
			return
		}

		msg, err := tagsig.Message(w.UID, w.TagID, 0, eventID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uid", "uid": uid})
			return
		}

		provisioned = append(provisioned, ProvisionedBand{
			Wristband:     w,
			InitialSigHex: tagsig.SignHex(ev.Secret(), msg),
		})
	}

	c.JSON(http.StatusCreated, provisioned)
}

func (h *Handler) ListWristbands(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	bands, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list wristbands"})
		return
	}

	c.JSON(http.StatusOK, bands)
}

func (h *Handler) GetWristband(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("wristbandID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wristband id"})
		return
	}

	w, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrWristbandNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wristband not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wristband"})
		return
	}

	c.JSON(http.StatusOK, w)
}
