package handler

import (
	"errors"
	"net/http"

	apptracking "github.com/enercompare/backend/internal/application/tracking"
	"github.com/enercompare/backend/internal/domain/shared"
	domain "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/enercompare/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WebhookSecretHeader authenticates the partner conversion webhook
const WebhookSecretHeader = "X-Webhook-Secret"

// TrackHandler serves the click beacon and the partner conversion webhook
type TrackHandler struct {
	BaseHandler
	clicks      *apptracking.ClickService
	conversions *apptracking.ConversionService
	logger      *zap.Logger
}

// NewTrackHandler creates a tracking handler
func NewTrackHandler(clicks *apptracking.ClickService, conversions *apptracking.ConversionService, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{clicks: clicks, conversions: conversions, logger: logger}
}

// RegisterRoutes registers tracking routes on the API group
func (h *TrackHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/track/click", h.Click)
	rg.POST("/track-conversion", h.Conversion)
}

type clickRequest struct {
	PartnerID string            `json:"partner_id"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata"`
}

// Click records an outbound referral click. It is a beacon target: the
// response is 204 no matter what, and the durable write happens in the
// background so the caller is never delayed.
func (h *TrackHandler) Click(c *gin.Context) {
	var req clickRequest
	// Beacons may send no body at all; a malformed one is treated the same.
	_ = c.ShouldBindJSON(&req)

	clickID := h.clicks.Record(apptracking.ClickInput{
		PartnerID: req.PartnerID,
		Source:    req.Source,
		Metadata:  req.Metadata,
	})

	c.Header("X-Click-ID", clickID)
	h.NoContent(c)
}

type conversionRequest struct {
	ClickID              string            `json:"click_id" binding:"required"`
	CustomerID           string            `json:"customer_id"`
	ProductSelected      string            `json:"product_selected"`
	ContractValue        *decimal.Decimal  `json:"contract_value"`
	ContractLengthMonths int               `json:"contract_length_months"`
	Source               string            `json:"source"`
	Metadata             map[string]string `json:"metadata"`
}

// Conversion handles the partner conversion webhook. Order of checks:
// shared secret, required click_id with the expected prefix, click validity,
// duplicate guard, store. Internal failure detail is never echoed back.
func (h *TrackHandler) Conversion(c *gin.Context) {
	if !h.conversions.Authenticate(c.GetHeader(WebhookSecretHeader)) {
		h.Unauthorized(c, dto.ErrCodeUnauthorized, "Invalid webhook secret")
		return
	}

	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "click_id is required")
		return
	}
	if !domain.IsValidClickID(req.ClickID) {
		h.BadRequest(c, "click_id is malformed")
		return
	}

	record, err := h.conversions.RecordConversion(c.Request.Context(), apptracking.ConversionInput{
		ClickID:              req.ClickID,
		CustomerID:           req.CustomerID,
		ProductSelected:      req.ProductSelected,
		ContractValue:        req.ContractValue,
		ContractLengthMonths: req.ContractLengthMonths,
		Source:               req.Source,
		Metadata:             req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrClickNotFound), errors.Is(err, shared.ErrOutsideWindow):
			// One generic 404 for both, so callers cannot probe which.
			h.Error(c, http.StatusNotFound, dto.ErrCodeClickNotFound, "Click not found")
		case errors.Is(err, shared.ErrDuplicateConversion):
			h.Error(c, http.StatusConflict, dto.ErrCodeDuplicateConversion, "Conversion already recorded")
		case errors.Is(err, shared.ErrInvalidInput):
			h.BadRequest(c, "click_id is malformed")
		default:
			h.logger.Error("failed to record conversion",
				zap.String("click_id", req.ClickID),
				zap.Error(err))
			h.InternalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"click_id": record.ClickID,
	})
}
