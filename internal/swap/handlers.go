package swap

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mintforge/synth-api/pkg/response"
)

// GinHandlers contains HTTP handlers for swap endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for swap endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PreviewHandler handles GET requests quoting a prospective swap.
// Query parameters: from, to, amount.
func (h *GinHandlers) PreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, err := decimal.NewFromString(c.Query("amount"))
		if err != nil {
			response.BadRequest(c, "amount must be a decimal number")
			return
		}

		quote, err := h.service.PreviewSwap(c.Query("from"), c.Query("to"), amount)
		response.Handle(c, quote, err)
	}
}

// SwapHandler handles POST requests executing a swap for the authenticated
// account
func (h *GinHandlers) SwapHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetString("clientID")
		if account == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req SwapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		receipt, err := h.service.Swap(account, req.FromKey, req.ToKey, req.Amount, req.MinOut)
		response.Handle(c, receipt, err)
	}
}

// FeePoolsHandler handles GET requests listing accrued fee pools.
// Requires admin authentication.
func (h *GinHandlers) FeePoolsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pools, err := h.service.FeePools()
		response.Handle(c, pools, err)
	}
}

// SetFeeHandler handles POST requests updating the swap fee rate.
// Requires admin authentication.
func (h *GinHandlers) SetFeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetFeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Handle(c, gin.H{"fee_rate": req.FeeRate}, h.service.SetFeeRate(req.FeeRate))
	}
}

// WithdrawFeesHandler handles POST requests extracting an accrued fee pool.
// Requires admin authentication.
func (h *GinHandlers) WithdrawFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WithdrawFeesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		amount, err := h.service.WithdrawFees(req.AssetKey, req.To)
		response.Handle(c, gin.H{"asset_key": req.AssetKey, "withdrawn": amount}, err)
	}
}
