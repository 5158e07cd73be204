package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mintforge/synth-api/internal/auth"
	"github.com/mintforge/synth-api/internal/database"
	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/internal/swap"
	"github.com/mintforge/synth-api/internal/vault"
	"github.com/mintforge/synth-api/pkg/middleware"
)

const (
	numClients    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret"
	adminAccount  = "protocol-admin"
)

var (
	ethStartPrice = decimal.RequireFromString("2000")
	btcStartPrice = decimal.RequireFromString("100000")

	// Price the ETH feed crashes to in the stress phase, low enough to push
	// leveraged positions under the liquidation ratio
	ethCrashPrice = decimal.RequireFromString("1100")
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the synth API on behalf of
// one simulated account
type simulationClient struct {
	baseURL   string
	account   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

var (
	statsMu     sync.Mutex
	sharedStats = map[string]*routeStats{
		"auth":      {name: "Authentication"},
		"approve":   {name: "Approve Collateral"},
		"deposit":   {name: "Deposit"},
		"mint":      {name: "Mint"},
		"burn":      {name: "Burn"},
		"swap":      {name: "Swap"},
		"poke":      {name: "Oracle Poke"},
		"position":  {name: "Get Position"},
		"liquidate": {name: "Liquidate"},
	}
)

func recordStat(key string, start time.Time, failed bool) {
	statsMu.Lock()
	defer statsMu.Unlock()
	rs := sharedStats[key]
	rs.addDuration(time.Since(start))
	if failed {
		rs.failures++
	}
}

// newSimulationClient authenticates one simulated account against the API
func newSimulationClient(account, apiSecret string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		account: account,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	token, err := sc.authenticate(account, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate %s: %w", account, err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	failed := true
	defer func() { recordStat("auth", start, failed) }()

	credentials := map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	failed = false
	return result.Token, nil
}

// post sends an authenticated JSON POST and decodes the envelope into out
func (sc *simulationClient) post(path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest("POST", sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

// get sends an authenticated GET and decodes the envelope into out
func (sc *simulationClient) get(path string, out interface{}) error {
	req, err := http.NewRequest("GET", sc.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

func (sc *simulationClient) approveCollateral(amount decimal.Decimal) error {
	start := time.Now()
	failed := true
	defer func() { recordStat("approve", start, failed) }()

	err := sc.post("/api/v1/ledger/approve", map[string]interface{}{
		"asset_key": vault.CollateralAssetKey,
		"spender":   vault.CustodyAccount,
		"amount":    amount,
	}, nil)
	failed = err != nil
	return err
}

func (sc *simulationClient) deposit(amount decimal.Decimal) error {
	start := time.Now()
	failed := true
	defer func() { recordStat("deposit", start, failed) }()

	err := sc.post("/api/v1/vault/deposit", map[string]interface{}{"amount": amount}, nil)
	failed = err != nil
	return err
}

func (sc *simulationClient) mint(amount decimal.Decimal) error {
	start := time.Now()
	failed := true
	defer func() { recordStat("mint", start, failed) }()

	err := sc.post("/api/v1/vault/mint", map[string]interface{}{"amount": amount}, nil)
	failed = err != nil
	return err
}

func (sc *simulationClient) burn(amount decimal.Decimal) error {
	start := time.Now()
	failed := true
	defer func() { recordStat("burn", start, failed) }()

	err := sc.post("/api/v1/vault/burn", map[string]interface{}{"amount": amount}, nil)
	failed = err != nil
	return err
}

func (sc *simulationClient) swap(from, to string, amount decimal.Decimal) (*swap.Receipt, error) {
	start := time.Now()
	failed := true
	defer func() { recordStat("swap", start, failed) }()

	var receipt swap.Receipt
	err := sc.post("/api/v1/swap", map[string]interface{}{
		"from_key": from,
		"to_key":   to,
		"amount":   amount,
	}, &receipt)
	if err != nil {
		return nil, err
	}
	failed = false
	return &receipt, nil
}

func (sc *simulationClient) poke(assetKey string) error {
	start := time.Now()
	failed := true
	defer func() { recordStat("poke", start, failed) }()

	err := sc.post("/api/v1/oracle/poke/"+assetKey, nil, nil)
	failed = err != nil
	return err
}

func (sc *simulationClient) position(account string) (*vault.PositionView, error) {
	start := time.Now()
	failed := true
	defer func() { recordStat("position", start, failed) }()

	var view vault.PositionView
	if err := sc.get("/api/v1/vault/positions/"+account, &view); err != nil {
		return nil, err
	}
	failed = false
	return &view, nil
}

func (sc *simulationClient) liquidate(account string) (*vault.LiquidationResult, error) {
	start := time.Now()
	failed := true
	defer func() { recordStat("liquidate", start, failed) }()

	var result vault.LiquidationResult
	err := sc.post("/api/v1/vault/liquidate", map[string]interface{}{"account": account}, &result)
	if err != nil {
		return nil, err
	}
	failed = false
	return &result, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	statsMu.Lock()
	defer statsMu.Unlock()
	for _, stats := range sharedStats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// simServices keeps direct handles on the in-process services the simulation
// manipulates outside the HTTP surface: the faucet and the crashable feed
type simServices struct {
	ledger *ledger.Service
	oracle *oracle.Service
	ethAgg *oracle.SimulatedAggregator
}

// main runs the issuance-and-liquidation simulation. It starts a local API
// server, onboards simulated accounts, walks each through the deposit, mint
// and swap lifecycle, then crashes the collateral price and lets the
// survivors liquidate the rest.
func main() {
	services, err := startServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Onboard simulated accounts
	clients := make([]*simulationClient, 0, numClients)
	for i := 0; i < numClients; i++ {
		account := fmt.Sprintf("CLIENT_%d", i)

		// Faucet: seed ETH straight onto the ledger
		if err := services.ledger.Issue(vault.CollateralAssetKey, account, decimal.NewFromInt(int64(rand.Intn(40)+10))); err != nil {
			log.Fatal().Err(err).Str("account", account).Msg("Failed to seed collateral")
		}

		sc, err := newSimulationClient(account, "secret-"+account)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize simulation client")
		}
		clients = append(clients, sc)
	}

	stats := struct {
		Deposits         int
		Mints            int
		Swaps            int
		Liquidations     int
		FailedOperations int
		SwapVolume       decimal.Decimal
		StartTime        time.Time
	}{StartTime: time.Now(), SwapVolume: decimal.Zero}

	// Lifecycle phase: approve, deposit, mint, swap
	var wg sync.WaitGroup
	var statsLock sync.Mutex
	for _, sc := range clients {
		wg.Add(1)
		go func(sc *simulationClient) {
			defer wg.Done()

			depositAmount := decimal.NewFromInt(int64(rand.Intn(8) + 2))
			if err := sc.approveCollateral(depositAmount); err != nil {
				log.Error().Err(err).Str("account", sc.account).Msg("Failed to approve collateral")
				return
			}
			if err := sc.deposit(depositAmount); err != nil {
				log.Error().Err(err).Str("account", sc.account).Msg("Failed to deposit")
				return
			}
			statsLock.Lock()
			stats.Deposits++
			statsLock.Unlock()

			// Mint close to the ratio floor so the crash phase has victims.
			// collateral * price / 1.6 leaves ~6% headroom above the 150% minimum.
			mintAmount := depositAmount.Mul(ethStartPrice).
				DivRound(decimal.RequireFromString("1.6"), 18)
			if err := sc.mint(mintAmount); err != nil {
				log.Error().Err(err).Str("account", sc.account).Msg("Failed to mint")
				return
			}
			statsLock.Lock()
			stats.Mints++
			statsLock.Unlock()
			log.Info().
				Str("account", sc.account).
				Str("collateral", depositAmount.String()).
				Str("debt", mintAmount.String()).
				Msg("Position opened")

			// Swap a slice of the minted synth into mBTC
			swapAmount := mintAmount.Div(decimal.NewFromInt(4)).Round(18)
			receipt, err := sc.swap(oracle.NativeAssetKey, "mBTC", swapAmount)
			if err != nil {
				log.Error().Err(err).Str("account", sc.account).Msg("Failed to swap")
				statsLock.Lock()
				stats.FailedOperations++
				statsLock.Unlock()
				return
			}
			statsLock.Lock()
			stats.Swaps++
			stats.SwapVolume = stats.SwapVolume.Add(swapAmount)
			statsLock.Unlock()
			log.Info().
				Str("account", sc.account).
				Str("amount_in", receipt.AmountIn.String()).
				Str("amount_out", receipt.AmountOut.String()).
				Str("fee", receipt.Fee.String()).
				Msg("Swapped into mBTC")
		}(sc)
	}
	wg.Wait()

	// Keep the settlement feed warm before the crash
	if err := clients[0].poke(vault.CollateralAssetKey); err != nil {
		log.Error().Err(err).Msg("Failed to poke collateral feed")
	}

	// Stress phase: crash the collateral price
	log.Info().
		Str("from", ethStartPrice.String()).
		Str("to", ethCrashPrice.String()).
		Msg("Crashing collateral price")
	services.ethAgg.SetPrice(ethCrashPrice)
	if err := clients[0].poke(vault.CollateralAssetKey); err != nil {
		log.Error().Err(err).Msg("Failed to poke after crash")
	}

	// Liquidation phase: the last client hunts underwater positions, burning
	// its own synth to cover their debt
	hunter := clients[len(clients)-1]
	for _, sc := range clients[:len(clients)-1] {
		view, err := hunter.position(sc.account)
		if err != nil {
			log.Error().Err(err).Str("account", sc.account).Msg("Failed to read position")
			continue
		}
		if !view.Liquidatable {
			log.Info().
				Str("account", sc.account).
				Str("ratio", view.CollateralRatio.String()).
				Msg("Position survived the crash")
			continue
		}

		result, err := hunter.liquidate(sc.account)
		if err != nil {
			log.Error().Err(err).Str("account", sc.account).Msg("Failed to liquidate")
			statsLock.Lock()
			stats.FailedOperations++
			statsLock.Unlock()
			continue
		}
		statsLock.Lock()
		stats.Liquidations++
		statsLock.Unlock()
		log.Info().
			Str("account", result.Account).
			Str("debt_burned", result.DebtBurned.String()).
			Str("collateral_to_caller", result.CollateralToCaller.String()).
			Str("penalty", result.Penalty.String()).
			Str("price_source", result.PriceSourceConsulted).
			Msg("Position liquidated")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SYNTH ISSUANCE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Accounts:          %d
Deposits:          %d
Mints:             %d
Swaps:             %d
Swap Volume:       %s %s
Liquidations:      %d
Failed Operations: %d
Duration:          %v
`, numClients, stats.Deposits, stats.Mints, stats.Swaps,
		stats.SwapVolume.Round(4), oracle.NativeAssetKey,
		stats.Liquidations, stats.FailedOperations,
		duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))

	printPerformanceStats()
}

// startServer initializes and starts the synth API server with simulated
// price feeds, returning direct handles for the faucet and the crash lever
func startServer() (*simServices, error) {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	middleware.SetJWTSecret(jwtSecret)
	authService := auth.NewService(jwtSecret)
	recorder := events.NewRecorder(db)
	registryService := registry.NewService(db, recorder)
	ledgerService := ledger.NewService(db)
	oracleService := oracle.NewService(db, recorder)
	issuerService := issuer.NewService(db, ledgerService, oracleService, recorder)
	vaultService := vault.NewService(db, ledgerService, issuerService, oracleService, recorder, adminAccount)
	swapService := swap.NewService(db, issuerService, oracleService, recorder)

	// Register simulation credentials, one identity per simulated account
	for i := 0; i < numClients; i++ {
		account := fmt.Sprintf("CLIENT_%d", i)
		authService.RegisterAPICredentials(account, "secret-"+account)
	}

	// Bootstrap the module graph
	if err := registryService.ImportAddresses(
		[]string{"Ledger", "PriceOracle", "Issuer", "CollateralVault", "SwapEngine"},
		[]string{"ledger-module", "oracle-module", "issuer-module", "vault-module", "swap-module"},
	); err != nil {
		return nil, err
	}
	for _, cache := range []*registry.Cache{
		issuerService.Cache(), vaultService.Cache(), swapService.Cache(),
	} {
		if err := cache.Rebuild(registryService); err != nil {
			return nil, err
		}
	}

	// Simulated feeds: a drifting ETH feed and a stable mBTC feed
	ethAgg := oracle.NewSimulatedAggregator("sim-eth", ethStartPrice, 8)
	btcAgg := oracle.NewSimulatedAggregator("sim-btc", btcStartPrice, 8)
	oracleService.RegisterAggregator("sim-eth", ethAgg)
	oracleService.RegisterAggregator("sim-btc", btcAgg)
	if err := oracleService.AddAggregator(vault.CollateralAssetKey, "sim-eth"); err != nil {
		return nil, err
	}
	if err := oracleService.AddAggregator("mBTC", "sim-btc"); err != nil {
		return nil, err
	}

	// Register assets and authorize the minting modules
	if err := issuerService.AddAsset(oracle.NativeAssetKey, "Synthetic US dollar"); err != nil {
		return nil, err
	}
	if err := issuerService.AddAsset("mBTC", "Synthetic bitcoin"); err != nil {
		return nil, err
	}
	if err := issuerService.AuthorizeVault(vault.ModuleName); err != nil {
		return nil, err
	}
	if err := issuerService.AuthorizeVault(swap.ModuleName); err != nil {
		return nil, err
	}

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	oracleHandlers := oracle.NewGinHandlers(oracleService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	vaultHandlers := vault.NewGinHandlers(vaultService)
	swapHandlers := swap.NewGinHandlers(swapService)

	// Setup routes
	setupRoutes(router, authHandlers, ledgerHandlers, oracleHandlers, vaultHandlers, swapHandlers)

	// Start the server
	go func() {
		if err := router.Run(":8080"); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	return &simServices{
		ledger: ledgerService,
		oracle: oracleService,
		ethAgg: ethAgg,
	}, nil
}

// setupRoutes configures the endpoints the simulation exercises
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
	vaultHandlers *vault.GinHandlers,
	swapHandlers *swap.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Oracle routes
		oracleGroup := v1.Group("/oracle")
		{
			oracleGroup.GET("/price/:key", oracleHandlers.GetPriceHandler())
			oracleGroup.GET("/settlement-price/:key", oracleHandlers.GetSettlementPriceHandler())
			oracleGroup.POST("/poke/:key", oracleHandlers.PokeHandler())
		}

		// Authenticated routes
		ledgerGroup := v1.Group("/ledger")
		ledgerGroup.Use(middleware.JWTAuth())
		{
			ledgerGroup.POST("/approve", ledgerHandlers.ApproveHandler())
		}

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

		swapGroup := v1.Group("/swap")
		swapGroup.Use(middleware.JWTAuth())
		{
			swapGroup.GET("/preview", swapHandlers.PreviewHandler())
			swapGroup.POST("", swapHandlers.SwapHandler())
		}
	}
}
