package vault

import (
	"github.com/gin-gonic/gin"

	"github.com/mintforge/synth-api/pkg/response"
)

// GinHandlers contains HTTP handlers for vault endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for vault endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func callerAccount(c *gin.Context) (string, bool) {
	account := c.GetString("clientID")
	if account == "" {
		response.Unauthorized(c, "Missing account identity")
		return "", false
	}
	return account, true
}

// DepositHandler handles POST requests to deposit collateral
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := callerAccount(c)
		if !ok {
			return
		}

		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Deposit(account, req.Amount)
		response.Handle(c, view, err)
	}
}

// WithdrawHandler handles POST requests to withdraw collateral
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := callerAccount(c)
		if !ok {
			return
		}

		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Withdraw(account, req.Amount)
		response.Handle(c, view, err)
	}
}

// MintHandler handles POST requests to mint synths against collateral
func (h *GinHandlers) MintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := callerAccount(c)
		if !ok {
			return
		}

		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Mint(account, req.Amount)
		response.Handle(c, view, err)
	}
}

// BurnHandler handles POST requests to burn synths against debt
func (h *GinHandlers) BurnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := callerAccount(c)
		if !ok {
			return
		}

		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Burn(account, req.Amount)
		response.Handle(c, view, err)
	}
}

// LiquidateHandler handles POST requests to liquidate an unhealthy position
func (h *GinHandlers) LiquidateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		liquidator, ok := callerAccount(c)
		if !ok {
			return
		}

		var req LiquidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Liquidate(liquidator, req.Account)
		response.Handle(c, result, err)
	}
}

// GetPositionHandler handles GET requests for one account's position
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.service.Position(c.Param("account"))
		response.Handle(c, view, err)
	}
}

// GetSummaryHandler handles GET requests for vault-wide state
func (h *GinHandlers) GetSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.Summary()
		response.Handle(c, summary, err)
	}
}

// Admin handlers, all requiring admin authentication

func (h *GinHandlers) SetMinCollateralRatioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetRatioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"min_collateral_ratio": req.Ratio}, h.service.SetMinCollateralRatio(req.Ratio))
	}
}

func (h *GinHandlers) SetLiquidationRatioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetRatioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"liquidation_ratio": req.Ratio}, h.service.SetLiquidationRatio(req.Ratio))
	}
}

func (h *GinHandlers) SetLiquidationPenaltyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPenaltyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"liquidation_penalty": req.Penalty}, h.service.SetLiquidationPenalty(req.Penalty))
	}
}

func (h *GinHandlers) SetActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"active": *req.Active}, h.service.SetActive(*req.Active))
	}
}

func (h *GinHandlers) SetPriceSourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPriceSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"price_source": req.PriceSource}, h.service.SetPriceSource(req.PriceSource))
	}
}
