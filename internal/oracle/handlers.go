package oracle

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mintforge/synth-api/pkg/response"
)

// GinHandlers contains HTTP handlers for oracle endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for oracle endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetPriceHandler handles GET requests for a spot price
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.GetPrice(c.Param("key"))
		response.Handle(c, result, err)
	}
}

// GetSettlementPriceHandler handles GET requests for the ruling settlement price
func (h *GinHandlers) GetSettlementPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.GetSettlementPrice(c.Param("key"))
		response.Handle(c, result, err)
	}
}

// GetOSMStatusHandler handles GET requests for the OSM diagnostic view
func (h *GinHandlers) GetOSMStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.service.GetOSMStatus(c.Param("key"))
		response.Handle(c, status, err)
	}
}

// CheckPendingActivationHandler handles GET requests asking whether a staged
// price activates within a window. Query parameter: window (seconds).
func (h *GinHandlers) CheckPendingActivationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		windowSeconds, err := strconv.Atoi(c.DefaultQuery("window", "0"))
		if err != nil || windowSeconds < 0 {
			response.BadRequest(c, "window must be a non-negative number of seconds")
			return
		}

		result, err := h.service.CheckPendingActivation(c.Param("key"), time.Duration(windowSeconds)*time.Second)
		response.Handle(c, result, err)
	}
}

// PokeHandler handles POST requests to poke a single asset. Open to any
// authenticated caller.
func (h *GinHandlers) PokeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		err := h.service.Poke(key)
		response.Handle(c, gin.H{"poked": key}, err)
	}
}

// PokeManyHandler handles POST requests to poke a batch of assets on a
// best-effort basis
func (h *GinHandlers) PokeManyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PokeManyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		h.service.PokeMany(req.AssetKeys)
		response.Success(c, gin.H{"poked": len(req.AssetKeys)})
	}
}

// ActivateHandler handles POST requests to force-activate a due pending price.
// Requires admin authentication.
func (h *GinHandlers) ActivateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		err := h.service.Activate(key)
		response.Handle(c, gin.H{"activated": key}, err)
	}
}

// InitializeHandler handles POST requests to bootstrap a settlement price.
// Requires admin authentication.
func (h *GinHandlers) InitializeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitializeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.InitializeSettlementPrice(req.AssetKey, req.Price)
		response.Handle(c, gin.H{"initialized": req.AssetKey}, err)
	}
}

// AddAggregatorHandler handles POST requests to assign an aggregator to a feed.
// Requires admin authentication.
func (h *GinHandlers) AddAggregatorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddAggregatorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.AddAggregator(req.AssetKey, req.AggregatorID)
		response.Handle(c, gin.H{"asset_key": req.AssetKey}, err)
	}
}

// RemoveAggregatorHandler handles POST requests to detach a feed's aggregator.
// Requires admin authentication.
func (h *GinHandlers) RemoveAggregatorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		err := h.service.RemoveAggregator(key)
		response.Handle(c, gin.H{"asset_key": key}, err)
	}
}

// SetManualPriceHandler handles POST requests recording a manual price.
// Requires admin authentication.
func (h *GinHandlers) SetManualPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetManualPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.SetManualPrice(req.AssetKey, req.Price)
		response.Handle(c, gin.H{"asset_key": req.AssetKey, "price": req.Price}, err)
	}
}

// SetUseManualHandler handles POST requests toggling manual override mode.
// Requires admin authentication.
func (h *GinHandlers) SetUseManualHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetUseManualRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.SetUseManual(req.AssetKey, *req.UseManual)
		response.Handle(c, gin.H{"asset_key": req.AssetKey, "use_manual": *req.UseManual}, err)
	}
}

// SetOSMEnabledHandler handles POST requests toggling the global OSM.
// Requires admin authentication.
func (h *GinHandlers) SetOSMEnabledHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetOSMEnabledRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.SetOSMEnabled(*req.Enabled)
		response.Handle(c, gin.H{"enabled": *req.Enabled}, err)
	}
}
