package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"bandpay/internal/auth"
	"bandpay/internal/device"
	"bandpay/internal/logger"
	"bandpay/internal/notify"
	"bandpay/internal/transaction"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc       *Service
	txs       transaction.Repository
	incidents *notify.Service
}

func NewHandler(svc *Service, txs transaction.Repository, incidents *notify.Service) *Handler {
	return &Handler{svc: svc, txs: txs, incidents: incidents}
}

// tagRequestBody is the wire form of the authenticated tag fields every
// POS operation carries.
type tagRequestBody struct {
	TxID     string `json:"tx_id" binding:"required"`
	EventID  string `json:"event_id" binding:"required,uuid"`
	UID      string `json:"uid" binding:"required"`
	TagID    string `json:"tag_id" binding:"required"`
	Ctr      uint32 `json:"ctr"`
	Sig      string `json:"sig" binding:"required"`
}

func (b tagRequestBody) toTagRequest() (TagRequest, error) {
	eventID, err := uuid.Parse(b.EventID)
	if err != nil {
		return TagRequest{}, errInvalid("invalid event id")
	}
	return TagRequest{
		TransactionID: b.TxID,
		EventID:       eventID,
		UIDHex:        b.UID,
		TagIDHex:      b.TagID,
		Ctr:           b.Ctr,
		SigHex:        b.Sig,
	}, nil
}

// devForRequest pulls the authenticated device and rejects a terminal
// trying to act in an event it is not provisioned for.
func devForRequest(c *gin.Context, eventID uuid.UUID) (*device.Device, bool) {
	d, ok := device.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "device authentication required"})
		return nil, false
	}
	if d.EventID != eventID {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "device belongs to a different event",
			"code":  string(CodeForbidden),
		})
		return nil, false
	}
	return d, true
}

type topUpBody struct {
	tagRequestBody
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

func (h *Handler) TopUp(c *gin.Context) {
	var body topUpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	tagReq, err := body.toTagRequest()
	if err != nil {
		respondError(c, err)
		return
	}

	d, ok := devForRequest(c, tagReq.EventID)
	if !ok {
		return
	}
	if d.Mode != device.ModeTopUp {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "device is not in top-up mode",
			"code":  string(CodeForbidden),
		})
		return
	}

	t, err := h.svc.TopUp(c.Request.Context(), TopUpRequest{
		TagRequest:  tagReq,
		AmountCents: body.AmountCents,
		Device:      d,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

func (h *Handler) BalanceCheck(c *gin.Context) {
	var body tagRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	tagReq, err := body.toTagRequest()
	if err != nil {
		respondError(c, err)
		return
	}

	d, ok := devForRequest(c, tagReq.EventID)
	if !ok {
		return
	}

	t, err := h.svc.BalanceCheck(c.Request.Context(), BalanceCheckRequest{
		TagRequest: tagReq,
		Device:     d,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type chargePrepareBody struct {
	tagRequestBody
	Items []ChargeItem `json:"items" binding:"required,min=1"`
}

func (h *Handler) ChargePrepare(c *gin.Context) {
	var body chargePrepareBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	tagReq, err := body.toTagRequest()
	if err != nil {
		respondError(c, err)
		return
	}

	d, ok := devForRequest(c, tagReq.EventID)
	if !ok {
		return
	}

	t, err := h.svc.ChargePrepare(c.Request.Context(), ChargePrepareRequest{
		TagRequest: tagReq,
		Items:      body.Items,
		Device:     d,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type chargeCommitBody struct {
	TxID string `json:"tx_id" binding:"required"`
}

// ChargeCommit takes only the transaction id; the event scope comes
// from the device key that authenticated the request, so a commit can
// never land on another event's transaction.
func (h *Handler) ChargeCommit(c *gin.Context) {
	var body chargeCommitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	d, ok := device.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "device authentication required"})
		return
	}

	t, err := h.svc.ChargeCommit(c.Request.Context(), d.EventID, body.TxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type resyncBody struct {
	WristbandID int    `json:"wristband_id" binding:"required"`
	TargetCtr   uint32 `json:"target_ctr"`
}

func (h *Handler) Resync(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body resyncBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	operatorID, _ := auth.GetUserID(c)
	t, err := h.svc.Resync(c.Request.Context(), ResyncRequest{
		EventID:     eventID,
		WristbandID: body.WristbandID,
		TargetCtr:   body.TargetCtr,
		OperatorID:  operatorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type invalidateBody struct {
	WristbandID int    `json:"wristband_id" binding:"required"`
	Reason      string `json:"reason"`
}

func (h *Handler) Invalidate(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body invalidateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	operatorID, _ := auth.GetUserID(c)
	t, err := h.svc.Invalidate(c.Request.Context(), InvalidateRequest{
		EventID:     eventID,
		WristbandID: body.WristbandID,
		Reason:      body.Reason,
		OperatorID:  operatorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type replaceBody struct {
	OldWristbandID int     `json:"old_wristband_id" binding:"required"`
	NewWristbandID *int    `json:"new_wristband_id"`
	NewTagUID      *string `json:"new_tag_uid"`
	Reason         string  `json:"reason"`
	SessionID      *int    `json:"session_id"`
}

func (h *Handler) Replace(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body replaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	operatorID, _ := auth.GetUserID(c)
	t, err := h.svc.Replace(c.Request.Context(), ReplaceRequest{
		EventID:        eventID,
		OldWristbandID: body.OldWristbandID,
		NewWristbandID: body.NewWristbandID,
		NewTagUID:      body.NewTagUID,
		Reason:         body.Reason,
		OperatorID:     operatorID,
		SessionID:      body.SessionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

type startReplaceBody struct {
	WristbandID int    `json:"wristband_id" binding:"required"`
	Reason      string `json:"reason"`
}

func (h *Handler) StartReplaceSession(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body startReplaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	operatorID, _ := auth.GetUserID(c)
	sess, err := h.svc.StartReplaceSession(c.Request.Context(), StartReplaceRequest{
		EventID:     eventID,
		WristbandID: body.WristbandID,
		Reason:      body.Reason,
		OperatorID:  operatorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetReplaceSession(c *gin.Context) {
	if _, ok := eventIDParam(c); !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		respondError(c, errInvalid("invalid session id"))
		return
	}

	sess, err := h.svc.GetReplaceSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type refundBody struct {
	ChargeTxID string `json:"charge_tx_id" binding:"required"`
}

func (h *Handler) Refund(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body refundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(CodeInvalidRequest)})
		return
	}

	operatorID, _ := auth.GetUserID(c)
	t, err := h.svc.Refund(c.Request.Context(), RefundRequest{
		EventID:    eventID,
		ChargeTxID: body.ChargeTxID,
		OperatorID: operatorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondTransaction(c, t)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := h.txs.ListByEvent(c.Request.Context(), eventID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *Handler) ListIncidents(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	incidents, err := h.incidents.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func eventIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id", "code": string(CodeInvalidRequest)})
		return uuid.Nil, false
	}
	return id, true
}

// respondTransaction flattens the stored result payload into the
// response body next to the transaction id, so a device replaying a
// request reads the very same body it missed the first time. Declines
// are successful outcomes and go out as 200.
func respondTransaction(c *gin.Context, t *transaction.Transaction) {
	body := gin.H{}
	if err := json.Unmarshal([]byte(t.ResultJSON), &body); err != nil {
		logger.WithError(err).Error("stored result payload is not valid JSON")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt transaction result"})
		return
	}
	body["tx_id"] = t.TxID
	c.JSON(http.StatusOK, body)
}

// respondError maps protocol errors onto their HTTP status with the
// machine code; everything else is an opaque 500.
func respondError(c *gin.Context, err error) {
	if e, ok := AsError(err); ok {
		body := gin.H{"error": e.Message, "code": string(e.Code)}
		for k, v := range e.Data {
			body[k] = v
		}
		c.JSON(e.Status, body)
		return
	}

	logger.WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
