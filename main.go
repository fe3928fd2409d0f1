package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"resolvarr/api"
	"resolvarr/config"
	"resolvarr/handlers"
	"resolvarr/internal/admission"
	"resolvarr/internal/linksign"
	"resolvarr/internal/ttlcache"
	"resolvarr/services/debrid"
	"resolvarr/services/selector"
	"resolvarr/services/sources"
)

const sweepInterval = 5 * time.Minute

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("resolvarr starting...")

	configPath := os.Getenv("RESOLVARR_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Sources and selection pipeline
	srcs := sources.BuildSources(settings.Sources)
	if len(srcs) == 0 {
		log.Printf("warning: no sources enabled; stream lists will be empty")
	}
	aggregator := sources.NewAggregator(
		time.Duration(settings.Selection.SourceTimeoutSec)*time.Second, srcs...)
	sel := selector.New(settings.Selection, nil)

	// Resolver: process-wide cache, limiter and breaker instances
	signer := linksign.New(settings.Debrid.LinkSecret)
	cache := ttlcache.New[string, debrid.CachedLink](
		settings.Debrid.CacheCapacity,
		time.Duration(settings.Debrid.CacheTTLMinutes)*time.Minute)
	limiter := admission.NewLimiter(settings.Debrid.RateLimitPerMinute, time.Minute)
	breaker := admission.NewBreaker(settings.Debrid.BreakerThreshold,
		time.Duration(settings.Debrid.BreakerResetSec)*time.Second)

	stopLimiterSweep := limiter.StartSweeping(sweepInterval)
	defer stopLimiterSweep()
	stopBreakerSweep := breaker.StartSweeping(sweepInterval)
	defer stopBreakerSweep()

	resolver := debrid.NewResolver(signer, cache, limiter, breaker, debrid.Options{
		WorkflowTimeout: time.Duration(settings.Debrid.RequestTimeoutSec) * time.Second,
		PollBudget:      settings.Debrid.PollBudget,
	})

	defaultProvider, defaultAPIKey := firstEnabledProvider(settings.Debrid.Providers)
	if defaultProvider == "" {
		log.Printf("warning: no debrid providers configured; links without a caller credential fall back to magnets")
	}

	streamsHandler := handlers.NewStreamsHandler(aggregator, sel, signer)
	resolveHandler := handlers.NewResolveHandler(resolver, defaultProvider, defaultAPIKey)
	healthHandler := handlers.NewHealthHandler(aggregator)

	r := mux.NewRouter()
	api.Register(r, streamsHandler, resolveHandler, healthHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // resolutions can outlive any sane write timeout
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}

// firstEnabledProvider picks the server-side default debrid account.
func firstEnabledProvider(providers []config.DebridProviderSettings) (name, apiKey string) {
	for _, p := range providers {
		if p.Enabled && strings.TrimSpace(p.APIKey) != "" {
			return p.Provider, strings.TrimSpace(p.APIKey)
		}
	}
	return "", ""
}
