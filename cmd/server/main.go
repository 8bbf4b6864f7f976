package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/predyn/wager-api/internal/assets"
	"github.com/predyn/wager-api/internal/auth"
	"github.com/predyn/wager-api/internal/betting"
	"github.com/predyn/wager-api/internal/claims"
	"github.com/predyn/wager-api/internal/database"
	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/oracle"
	"github.com/predyn/wager-api/internal/rounds"
	"github.com/predyn/wager-api/internal/settlement"
	"github.com/predyn/wager-api/internal/token"
	"github.com/predyn/wager-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

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

// main initializes and runs the wagering ledger API server with graceful
// shutdown support. It sets up all services, the database connection,
// the in-memory asset bank, and the route tree.
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DB_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Deployment identity: the chain id and treasury address bind oracle
	// signatures to this deployment.
	chainID := envInt64("CHAIN_ID", 137)
	treasury := envAddress("TREASURY_ADDRESS", "0x00000000000000000000000000000000000caFe1")
	wrapped := envAddress("WRAPPED_ASSET", "0x00000000000000000000000000000000000caFe2")
	admin := envAddress("ADMIN_ADDRESS", "0x00000000000000000000000000000000000caFe3")
	oracleSigner := envAddress("ORACLE_SIGNER", "")

	bank := token.NewBank(wrapped)
	verifier := oracle.NewVerifier(chainID, treasury)

	state, err := ledger.NewState(db, admin, oracleSigner)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize ledger state")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(envOr("JWT_SECRET", "wager-secret-key"))
	authHandlers := auth.NewGinHandlers(authService)
	authService.RegisterAccount(
		envOr("ADMIN_API_KEY", "admin-api-key"),
		envOr("ADMIN_API_SECRET", "admin-api-secret"),
		admin.Hex(),
		true,
	)

	publisher := events.NewPublisher(db)
	eventHandlers := events.NewGinHandlers(publisher)

	assetService, err := assets.NewService(db, state, publisher, wrapped)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize asset registry")
	}
	assetHandlers := assets.NewGinHandlers(assetService)

	roundService := rounds.NewService(db, state, publisher)
	roundHandlers := rounds.NewGinHandlers(roundService)

	bettingService := betting.NewService(db, state, assetService, bank, publisher, treasury)
	bettingHandlers := betting.NewGinHandlers(bettingService)

	settlementService := settlement.NewService(db, state, verifier, publisher)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	claimService := claims.NewService(db, state, bank, publisher, treasury)
	claimHandlers := claims.NewGinHandlers(claimService)

	// Create and start the settlement watchdog
	watchdog := settlement.NewProcessor(settlementService.GetDB())
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go watchdog.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authService, authHandlers, roundHandlers, assetHandlers,
		bettingHandlers, settlementHandlers, claimHandlers, eventHandlers, state)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
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

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Read routes: Public round, asset, and event accessors (available
//   while paused)
// - Betting and claim routes: Protected by JWT authentication
// - Settle route: Open relay; authority comes from the oracle signature
// - Admin routes: Restricted to the administrator identity
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	roundHandlers *rounds.GinHandlers,
	assetHandlers *assets.GinHandlers,
	bettingHandlers *betting.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	claimHandlers *claims.GinHandlers,
	eventHandlers *events.GinHandlers,
	state *ledger.State,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Read-only accessors stay available while paused
		v1.GET("/rounds/:round_id", roundHandlers.GetRoundHandler())
		v1.GET("/rounds/:round_id/bettors", bettingHandlers.GetBettorsHandler())
		v1.GET("/rounds/:round_id/bets/:address", bettingHandlers.GetUserBetHandler())
		v1.GET("/assets/:asset", assetHandlers.GetAssetHandler())
		v1.GET("/events", eventHandlers.GetEventsHandler())

		// Settlement relay: no caller auth, the attestation authorizes itself
		v1.POST("/rounds/:round_id/settle", settlementHandlers.SettleRoundHandler())

		// Betting and claims
		bets := v1.Group("/rounds/:round_id")
		bets.Use(middleware.JWTAuth(authService))
		{
			bets.POST("/bets", bettingHandlers.PlaceBetHandler())
			bets.POST("/claim", claimHandlers.ClaimHandler())
			bets.POST("/claim-native", claimHandlers.ClaimNativeHandler())
		}

		// Administrative surface
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.AdminAuth(authService))
		{
			adminGroup.POST("/rounds", roundHandlers.CreateRoundHandler())
			adminGroup.POST("/assets", assetHandlers.AddAssetHandler())
			adminGroup.DELETE("/assets/:asset", assetHandlers.RemoveAssetHandler())
			adminGroup.POST("/oracle-signer", settlementHandlers.SetOracleSignerHandler())
			adminGroup.POST("/pause", pauseHandler(state, true))
			adminGroup.POST("/unpause", pauseHandler(state, false))
			adminGroup.POST("/emergency-withdraw", claimHandlers.EmergencyWithdrawHandler())
		}
	}
}

// pauseHandler flips the global pause switch gating every mutating
// entry point.
func pauseHandler(state *ledger.State, pause bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var err error
		if pause {
			err = state.Pause()
		} else {
			err = state.Unpause()
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "paused": state.Paused()})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		zlog.Fatal().Str("key", key).Str("value", v).Msg("invalid integer in environment")
	}
	return n
}

func envAddress(key, fallback string) common.Address {
	if v := os.Getenv(key); v != "" {
		return common.HexToAddress(v)
	}
	return common.HexToAddress(fallback)
}
