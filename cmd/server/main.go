package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/mintforge/synth-api/internal/auth"
	"github.com/mintforge/synth-api/internal/config"
	"github.com/mintforge/synth-api/internal/database"
	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/internal/swap"
	"github.com/mintforge/synth-api/internal/vault"
	"github.com/mintforge/synth-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Registry names the modules resolve each other through
var moduleNames = []string{"Ledger", "PriceOracle", "Issuer", "CollateralVault", "SwapEngine"}

var moduleAddresses = []string{"ledger-module", "oracle-module", "issuer-module", "vault-module", "swap-module"}

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the synthetic-asset API server with graceful
// shutdown support. It wires the module graph, bootstraps the registry, and
// starts the background oracle poker.
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	middleware.SetJWTSecret(cfg.JWTSecret)
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	authService.RegisterAPICredentials(getEnvDefault("API_KEY", "synth-api-key"), getEnvDefault("API_SECRET", "synth-api-secret"))
	authService.RegisterAdminCredentials(getEnvDefault("ADMIN_API_KEY", "synth-admin-key"), getEnvDefault("ADMIN_API_SECRET", "synth-admin-secret"))

	recorder := events.NewRecorder(db)
	eventHandlers := events.NewGinHandlers(recorder)

	registryService := registry.NewService(db, recorder)
	registryHandlers := registry.NewGinHandlers(registryService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	oracleService := oracle.NewService(db, recorder)
	oracleHandlers := oracle.NewGinHandlers(oracleService)

	issuerService := issuer.NewService(db, ledgerService, oracleService, recorder)
	issuerHandlers := issuer.NewGinHandlers(issuerService)

	vaultService := vault.NewService(db, ledgerService, issuerService, oracleService, recorder, cfg.AdminAccount)
	vaultHandlers := vault.NewGinHandlers(vaultService)

	swapService := swap.NewService(db, issuerService, oracleService, recorder)
	swapHandlers := swap.NewGinHandlers(swapService)

	registryHandlers.TrackCaches(issuerService.Cache(), vaultService.Cache(), swapService.Cache())

	if err := bootstrap(cfg, registryService, issuerService, vaultService, swapService); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap module graph")
	}

	// Create and start the background oracle poker
	poker := oracle.NewPoker(oracleService, cfg.OSMPokeInterval)
	pokerCtx, pokerCancel := context.WithCancel(context.Background())
	defer pokerCancel()

	go poker.Start(pokerCtx)

	// Setup middleware
	router.Use(middleware.Metrics())
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, registryHandlers, ledgerHandlers, oracleHandlers, issuerHandlers, vaultHandlers, swapHandlers, eventHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// bootstrap imports the module addresses, rebuilds every dependency cache,
// registers the native unit, and authorizes the minting modules. Every step
// is idempotent so restarts are safe.
func bootstrap(
	cfg config.Config,
	registryService *registry.Service,
	issuerService *issuer.Service,
	vaultService *vault.Service,
	swapService *swap.Service,
) error {
	if err := registryService.ImportAddresses(moduleNames, moduleAddresses); err != nil {
		return err
	}

	for _, cache := range []*registry.Cache{
		issuerService.Cache(),
		vaultService.Cache(),
		swapService.Cache(),
	} {
		if err := cache.Rebuild(registryService); err != nil {
			return err
		}
	}

	registered, err := issuerService.IsRegistered(oracle.NativeAssetKey)
	if err != nil {
		return err
	}
	if !registered {
		if err := issuerService.AddAsset(oracle.NativeAssetKey, "Synthetic US dollar, the native debt unit"); err != nil {
			return err
		}
	}

	if err := issuerService.AuthorizeVault(vault.ModuleName); err != nil {
		return err
	}
	if err := issuerService.AuthorizeVault(swap.ModuleName); err != nil {
		return err
	}

	summary, err := vaultService.Summary()
	if err != nil {
		return err
	}
	if summary.PriceSource != cfg.LiquidationPriceSource {
		if err := vaultService.SetPriceSource(cfg.LiquidationPriceSource); err != nil {
			return err
		}
	}

	return nil
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Read routes: Protected by JWT authentication
// - Mutating routes: Protected by JWT authentication, caller taken from claims
// - Admin routes: Protected by the admin permission
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	registryHandlers *registry.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
	issuerHandlers *issuer.GinHandlers,
	vaultHandlers *vault.GinHandlers,
	swapHandlers *swap.GinHandlers,
	eventHandlers *events.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Registry routes
		registryGroup := v1.Group("/registry")
		registryGroup.GET("/addresses", registryHandlers.ListAddressesHandler())
		registryGroup.GET("/addresses/:name", registryHandlers.GetAddressHandler())
		registryGroup.POST("/addresses", middleware.AdminAuth(), registryHandlers.ImportAddressesHandler())
		registryGroup.GET("/cache-status", middleware.AdminAuth(), registryHandlers.CacheStatusHandler())

		// Audit events
		v1.GET("/events", middleware.AdminAuth(), eventHandlers.ListEventsHandler())

		// Oracle routes; pokes are open on purpose, anyone may advance the clock
		oracleGroup := v1.Group("/oracle")
		{
			oracleGroup.GET("/price/:key", oracleHandlers.GetPriceHandler())
			oracleGroup.GET("/settlement-price/:key", oracleHandlers.GetSettlementPriceHandler())
			oracleGroup.GET("/osm/:key", oracleHandlers.GetOSMStatusHandler())
			oracleGroup.GET("/osm/:key/pending", oracleHandlers.CheckPendingActivationHandler())
			oracleGroup.POST("/poke/:key", oracleHandlers.PokeHandler())
			oracleGroup.POST("/poke", oracleHandlers.PokeManyHandler())

			oracleAdmin := oracleGroup.Group("")
			oracleAdmin.Use(middleware.AdminAuth())
			{
				oracleAdmin.POST("/activate/:key", oracleHandlers.ActivateHandler())
				oracleAdmin.POST("/initialize", oracleHandlers.InitializeHandler())
				oracleAdmin.POST("/aggregators", oracleHandlers.AddAggregatorHandler())
				oracleAdmin.DELETE("/aggregators/:key", oracleHandlers.RemoveAggregatorHandler())
				oracleAdmin.POST("/manual-price", oracleHandlers.SetManualPriceHandler())
				oracleAdmin.POST("/use-manual", oracleHandlers.SetUseManualHandler())
				oracleAdmin.POST("/osm-enabled", oracleHandlers.SetOSMEnabledHandler())
			}
		}

		// Asset routes
		assetGroup := v1.Group("/assets")
		{
			assetGroup.GET("", issuerHandlers.ListAssetsHandler())

			assetAdmin := assetGroup.Group("")
			assetAdmin.Use(middleware.AdminAuth())
			{
				assetAdmin.POST("", issuerHandlers.AddAssetHandler())
				assetAdmin.POST("/:key/remove", issuerHandlers.RemoveAssetHandler())
				assetAdmin.POST("/authorize", issuerHandlers.AuthorizeVaultHandler())
				assetAdmin.POST("/revoke", issuerHandlers.RevokeVaultHandler())
				assetAdmin.GET("/total-value", issuerHandlers.TotalIssuedValueHandler())
			}
		}

		// Ledger routes
		ledgerGroup := v1.Group("/ledger")
		ledgerGroup.Use(middleware.JWTAuth())
		{
			ledgerGroup.GET("/balances/:key/:account", ledgerHandlers.GetBalanceHandler())
			ledgerGroup.POST("/approve", ledgerHandlers.ApproveHandler())
			ledgerGroup.POST("/transfer", ledgerHandlers.TransferHandler())
		}

		// Vault routes
		vaultGroup := v1.Group("/vault")
		vaultGroup.Use(middleware.JWTAuth())
		{
			vaultGroup.POST("/deposit", vaultHandlers.DepositHandler())
			vaultGroup.POST("/withdraw", vaultHandlers.WithdrawHandler())
			vaultGroup.POST("/mint", vaultHandlers.MintHandler())
			vaultGroup.POST("/burn", vaultHandlers.BurnHandler())
			vaultGroup.POST("/liquidate", vaultHandlers.LiquidateHandler())
			vaultGroup.GET("/positions/:account", vaultHandlers.GetPositionHandler())
			vaultGroup.GET("/summary", vaultHandlers.GetSummaryHandler())
		}

		vaultAdmin := v1.Group("/vault/params")
		vaultAdmin.Use(middleware.AdminAuth())
		{
			vaultAdmin.POST("/min-ratio", vaultHandlers.SetMinCollateralRatioHandler())
			vaultAdmin.POST("/liquidation-ratio", vaultHandlers.SetLiquidationRatioHandler())
			vaultAdmin.POST("/penalty", vaultHandlers.SetLiquidationPenaltyHandler())
			vaultAdmin.POST("/active", vaultHandlers.SetActiveHandler())
			vaultAdmin.POST("/price-source", vaultHandlers.SetPriceSourceHandler())
		}

		// Swap routes
		swapGroup := v1.Group("/swap")
		swapGroup.Use(middleware.JWTAuth())
		{
			swapGroup.GET("/preview", swapHandlers.PreviewHandler())
			swapGroup.POST("", swapHandlers.SwapHandler())
		}

		swapAdmin := v1.Group("/swap/admin")
		swapAdmin.Use(middleware.AdminAuth())
		{
			swapAdmin.GET("/fee-pools", swapHandlers.FeePoolsHandler())
			swapAdmin.POST("/fee", swapHandlers.SetFeeHandler())
			swapAdmin.POST("/withdraw-fees", swapHandlers.WithdrawFeesHandler())
		}
	}
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
