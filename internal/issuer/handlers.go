package issuer

import (
	"github.com/gin-gonic/gin"

	"github.com/mintforge/synth-api/pkg/response"
)

// GinHandlers contains HTTP handlers for issuer endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for issuer endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListAssetsHandler handles GET requests enumerating registered assets
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.Assets()
		response.Handle(c, assets, err)
	}
}

// TotalIssuedValueHandler handles GET requests for the best-effort
// system-wide issued value. Requires admin authentication.
func (h *GinHandlers) TotalIssuedValueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := h.service.TotalIssuedValue()
		response.Handle(c, value, err)
	}
}

// AddAssetHandler handles POST requests registering a new synthetic asset.
// Requires admin authentication.
func (h *GinHandlers) AddAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.AddAsset(req.AssetKey, req.Description)
		response.Handle(c, gin.H{"asset_key": req.AssetKey}, err)
	}
}

// RemoveAssetHandler handles POST requests delisting an asset.
// Requires admin authentication.
func (h *GinHandlers) RemoveAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		err := h.service.RemoveAsset(key)
		response.Handle(c, gin.H{"removed": key}, err)
	}
}

// AuthorizeVaultHandler handles POST requests adding a module to the minting
// allowlist. Requires admin authentication.
func (h *GinHandlers) AuthorizeVaultHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AuthorizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.AuthorizeVault(req.ModuleName)
		response.Handle(c, gin.H{"authorized": req.ModuleName}, err)
	}
}

// RevokeVaultHandler handles POST requests removing a module from the
// minting allowlist. Requires admin authentication.
func (h *GinHandlers) RevokeVaultHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AuthorizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.RevokeVault(req.ModuleName)
		response.Handle(c, gin.H{"revoked": req.ModuleName}, err)
	}
}
