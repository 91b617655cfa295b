package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-feed-lab/internal/archive"
	"market-feed-lab/internal/feed"
	"market-feed-lab/internal/observability"
	"market-feed-lab/internal/storage"
	"market-feed-lab/internal/storage/clickhouse"
	"market-feed-lab/internal/storage/memory"
	"market-feed-lab/internal/storage/migrations"
	pgstore "market-feed-lab/internal/storage/postgres"
	"market-feed-lab/internal/supervisor"
)

func main() {
	// Parse flags
	symbols := flag.String("symbols", "", "Comma-separated symbols to stream (required)")
	primaryURL := flag.String("primary-url", "wss://stream.data.alpaca.markets/v2/iex", "Primary feed WebSocket URL")
	primaryEnabled := flag.Bool("primary-enabled", true, "Attempt the primary feed before falling back")
	streamingTimeout := flag.Duration("streaming-timeout", 10*time.Second, "How long the primary gets to deliver its first bar")
	relayAddr := flag.String("relay-addr", "localhost:6379", "Fallback relay Redis address")
	relayChannel := flag.String("relay-channel", "market_data", "Fallback relay pub/sub channel")
	relayTopic := flag.String("relay-topic", "market_data", "Fallback relay topic prefix to accept")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the bar archive (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Run database migrations before starting")
	staleAfter := flag.Duration("stale-after", 24*time.Hour, "Warn when a symbol's stored history is older than this (0 to disable)")
	bridgeSize := flag.Int("bridge-size", 256, "Feed-to-store hand-off queue capacity")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile)

	symbolList := splitSymbols(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("No symbols specified. Use --symbols")
	}
	logger.Printf("Streaming symbols: %v", symbolList)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, runOptions{
		symbols:          symbolList,
		primaryURL:       *primaryURL,
		primaryEnabled:   *primaryEnabled,
		streamingTimeout: *streamingTimeout,
		relayAddr:        *relayAddr,
		relayChannel:     *relayChannel,
		relayTopic:       *relayTopic,
		postgresDSN:      *postgresDSN,
		clickhouseDSN:    *clickhouseDSN,
		useMemory:        *useMemory,
		migrate:          *migrate,
		staleAfter:       *staleAfter,
		bridgeSize:       *bridgeSize,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runOptions struct {
	symbols          []string
	primaryURL       string
	primaryEnabled   bool
	streamingTimeout time.Duration
	relayAddr        string
	relayChannel     string
	relayTopic       string
	postgresDSN      string
	clickhouseDSN    string
	useMemory        bool
	migrate          bool
	staleAfter       time.Duration
	bridgeSize       int
}

// run wires storage, the feeds, and the supervisor, then blocks until
// the context is cancelled.
func run(ctx context.Context, logger *log.Logger, opts runOptions) error {
	// Require --postgres-dsn unless --use-memory is explicitly set
	if !opts.useMemory && opts.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	key := os.Getenv("PRIMARY_FEED_KEY")
	secret := os.Getenv("PRIMARY_FEED_SECRET")
	if opts.primaryEnabled && (key == "" || secret == "") {
		logger.Println("PRIMARY_FEED_KEY/PRIMARY_FEED_SECRET not set, disabling primary feed")
		opts.primaryEnabled = false
	}

	// Create stores (use interfaces)
	var barStore storage.BarStore = memory.NewBarStore()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if opts.migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fmt.Errorf("run postgres migrations: %w", err)
			}
			logger.Println("Postgres migrations applied")
		}

		barStore = pgstore.NewBarStore(pool)
	}

	// Optional analytics archive
	var downstream feed.Handler
	if opts.clickhouseDSN != "" {
		var conn *clickhouse.Conn
		var err error
		if opts.migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
			if err != nil {
				return fmt.Errorf("run clickhouse migrations: %w", err)
			}
			logger.Println("ClickHouse migrations applied")
		} else {
			conn, err = clickhouse.NewConn(ctx, opts.clickhouseDSN)
			if err != nil {
				return fmt.Errorf("connect to clickhouse: %w", err)
			}
		}
		defer conn.Close()

		writer := archive.NewWriter(clickhouse.NewBarArchiveStore(conn), archive.Config{
			Logger: logger,
		})
		defer writer.Close()
		downstream = writer.Push
	}

	sup := supervisor.New(supervisor.Options{
		PrimaryEnabled:   opts.primaryEnabled,
		StreamingTimeout: opts.streamingTimeout,
		NewPrimary: func() supervisor.PrimaryClient {
			return feed.NewPrimaryClient(feed.PrimaryConfig{
				URL:     opts.primaryURL,
				Key:     key,
				Secret:  secret,
				Symbols: opts.symbols,
				Logger:  logger,
			})
		},
		NewFallback: func() feed.Client {
			return feed.NewFallbackClient(feed.FallbackConfig{
				Addr:    opts.relayAddr,
				Channel: opts.relayChannel,
				Topic:   opts.relayTopic,
				Logger:  logger,
			})
		},
		Bars:       barStore,
		Downstream: downstream,
		Symbols:    opts.symbols,
		StaleAfter: opts.staleAfter,
		BridgeSize: opts.bridgeSize,
		Logger:     logger,
	})

	if err := sup.Start(); err != nil {
		return err
	}
	defer sup.Stop()

	logger.Println("Market data ingestion running")
	<-ctx.Done()
	return ctx.Err()
}

// splitSymbols parses the comma-separated symbol list, upper-casing and
// deduplicating entries.
func splitSymbols(s string) []string {
	seen := make(map[string]bool)
	var list []string
	for _, sym := range strings.Split(s, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		list = append(list, sym)
	}
	return list
}
