package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/sha3"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/config"
	"lottery-engine/internal/events"
	"lottery-engine/internal/handlers"
	"lottery-engine/internal/metrics"
	"lottery-engine/internal/services"
	"lottery-engine/internal/storage"
)

func main() {
	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using the environment")
	}
	cfg := config.Load()

	defer logger.Init("lottery", cfg.LogVerbose, false, os.Stdout).Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Fatalf("Invalid ledger configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to open storage at %s: %v", cfg.DBPath, err)
	}
	defer store.Close()
	logger.Infof("Storage ready at %s", cfg.DBPath)

	// 3. Event publishers
	publishers := events.Fanout{events.LogPublisher{}}
	if cfg.RedisAddr != "" {
		redisPub, err := events.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			logger.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		defer redisPub.Close()
		publishers = append(publishers, redisPub)
		logger.Infof("Publishing events to redis channel %s", cfg.RedisChannel)
	}

	// 4. Initialize the Lottery Service
	host := chain.NewSimulatedHost(clockwork.NewRealClock(), genesisHash(cfg.ContractAddress))
	lotteryService, err := services.NewLotteryService(ctx, ledgerCfg, services.Options{
		Host:      host,
		Store:     store,
		Publisher: publishers,
	})
	if err != nil {
		logger.Fatalf("Failed to start the lottery service: %v", err)
	}

	// 5. Set up the Gin router
	if !cfg.LogVerbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	handlers.NewHTTPHandler(lotteryService).RegisterRoutes(r)

	// 6. Settle overdue draws in the background
	if cfg.AutoDrawInterval > 0 {
		go runAutoDraw(ctx, lotteryService, cfg.AutoDrawInterval)
	}

	// 7. Run the server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}

func runAutoDraw(ctx context.Context, svc *services.LotteryService, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d, err := svc.AutoDraw(ctx)
			if err != nil {
				logger.Errorf("Auto draw failed: %v", err)
				continue
			}
			if d != nil {
				logger.Infof("Auto draw settled draw %d", d.ID)
			}
			if err := svc.DispatchPayouts(ctx); err != nil {
				logger.Warningf("Payout dispatch: %v", err)
			}
		}
	}
}

// genesisHash seeds the simulated chain so each deployment address gets its
// own block hash sequence.
func genesisHash(address string) [32]byte {
	var h [32]byte
	k := sha3.NewLegacyKeccak256()
	k.Write([]byte(address))
	copy(h[:], k.Sum(nil))
	return h
}
