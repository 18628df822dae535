// Command gateway runs one ask through the LLM gateway from the terminal.
//
// Usage:
//
//	gateway [flags] "question text"
//
// The question may also arrive on stdin. Configuration comes from a YAML
// file (-config); provider API keys referenced as ${VAR} expand from the
// environment, with .env loaded first.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/gateway"
	"github.com/docuquery/llm-gateway/internal/limits"
	"github.com/docuquery/llm-gateway/internal/metering"
	"github.com/docuquery/llm-gateway/internal/monitoring"
	"github.com/docuquery/llm-gateway/internal/prompt"
	"github.com/docuquery/llm-gateway/internal/providers"
	"github.com/docuquery/llm-gateway/internal/respcache"
	"github.com/docuquery/llm-gateway/internal/storage"
	"github.com/docuquery/llm-gateway/internal/streaming"
	"github.com/docuquery/llm-gateway/internal/tokens"
	"github.com/docuquery/llm-gateway/internal/webaugment"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the gateway config file")
		userID     = flag.String("user", "local", "user id for scoping and metering")
		sessionID  = flag.String("session", "", "session id for chat history")
		fileID     = flag.String("file", "", "restrict document context to one file")
		provider   = flag.String("provider", "", "provider override (name or alias)")
		stream     = flag.Bool("stream", false, "stream the answer as it is produced")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Local .env before config so ${VAR} references expand.
	_ = godotenv.Load()

	setupLogging(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	applyLogLevel(cfg.LogLevel)

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		question = readStdin()
	}
	if question == "" {
		fmt.Fprintln(os.Stderr, "Error: no question given (pass as argument or on stdin)")
		os.Exit(1)
	}

	ensureProviderKeys(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, cleanup, err := buildGateway(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	req := prompt.PromptRequest{
		Question:     question,
		ProviderHint: *provider,
		Metadata: prompt.CallerMetadata{
			UserID:    *userID,
			SessionID: *sessionID,
			FileID:    *fileID,
			Endpoint:  "cli",
			RequestID: uuid.NewString(),
		},
	}

	if *stream {
		runStream(ctx, gw, req)
		return
	}
	runAsk(ctx, gw, req)
}

func runAsk(ctx context.Context, gw *gateway.Gateway, req prompt.PromptRequest) {
	answer, err := gw.Ask(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(answer.Text)
	log.Info().
		Str("model", answer.Model).
		Str("provider", answer.Provider).
		Bool("cached", answer.Cached).
		Float64("cost_usd", answer.CostUSD).
		Msg("done")
}

func runStream(ctx context.Context, gw *gateway.Gateway, req prompt.PromptRequest) {
	s, err := gw.AskStream(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for frag := range s.Fragments {
		if frag.Err != nil {
			fmt.Fprintf(os.Stderr, "\nstream error: %v\n", frag.Err)
			os.Exit(1)
		}
		fmt.Print(frag.Text)
	}
	fmt.Println()
}

// buildGateway wires every component from config. The returned cleanup closes
// the underlying stores.
func buildGateway(ctx context.Context, cfg *config.Config) (*gateway.Gateway, func(), error) {
	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	cleanup := func() { _ = db.Close() }

	metrics := monitoring.NewMetricsCollector()
	estimator := tokens.NewEstimator(0)

	limitStore, err := limits.NewSQLStore(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	resolver := limits.NewResolver(limitStore, cfg.Limits.TTL)

	instrSource, err := providers.NewSQLInstructionSource(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sysPrompt := providers.NewSystemPromptCache(instrSource, cfg.Dispatch.SystemPromptTTL)

	adapters, specs := buildProviders(cfg)
	dispatcher := providers.NewDispatcher(adapters, specs, cfg.Aliases,
		cfg.DefaultProvider, resolver, estimator, metrics)
	dispatcher.SetBackoff(cfg.Dispatch.BackoffBase, cfg.Dispatch.MaxAttempts)

	cacheStore, closeCache, err := buildCacheStore(ctx, cfg, db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closeAll := func() { closeCache(); cleanup() }

	var billing metering.BillingSink
	if cfg.Billing.Endpoint != "" {
		billing = metering.NewHTTPBillingClient(cfg.Billing.Endpoint, cfg.Billing.APIKey)
	}
	meter, err := metering.NewMeter(db, billing)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	docs, err := storage.NewSQLDocumentStore(db)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	gw := gateway.New(gateway.Options{
		Assembler:  prompt.NewAssembler(estimator, 0, 0),
		SysPrompt:  sysPrompt,
		Decider:    webaugment.NewDecider(0),
		Search:     webaugment.NewSearchClient(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.Timeout),
		Fetcher:    webaugment.NewFetcher(0, 0),
		Cache:      respcache.New(cacheStore, cfg.Cache.TTL, cfg.Cache.Secret, metrics),
		Dispatcher: dispatcher,
		Normalizer: streaming.NewNormalizer(cfg.Dispatch.IdleTimeout, metrics),
		Docs:       docs,
		Meter:      meter,
		Turns:      docs,
		Estimator:  estimator,
		Metrics:    metrics,
	})
	return gw, closeAll, nil
}

// buildProviders instantiates one adapter per configured provider.
// Unknown names are treated as OpenAI-compatible endpoints.
func buildProviders(cfg *config.Config) ([]providers.Adapter, []providers.ProviderModelSpec) {
	var adapters []providers.Adapter
	var specs []providers.ProviderModelSpec

	for name, p := range cfg.Providers {
		var a providers.Adapter
		switch name {
		case "gemini", "google":
			a = providers.NewGeminiAdapter(p.APIKey, p.BaseURL, p.Timeout)
		case "claude", "anthropic":
			a = providers.NewClaudeAdapter(p.APIKey, p.BaseURL, p.Timeout)
		default:
			a = providers.NewOpenAIAdapter(name, p.APIKey, p.BaseURL, p.Timeout)
		}
		adapters = append(adapters, a)
		specs = append(specs, providers.ProviderModelSpec{
			Key:     a.Name(),
			Models:  p.Models,
			Dialect: streaming.Dialect(p.Dialect),
		})
	}
	return adapters, specs
}

// buildCacheStore selects the response-cache backend.
func buildCacheStore(ctx context.Context, cfg *config.Config, db *sql.DB) (respcache.Store, func(), error) {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		return respcache.NewRedisStore(client), func() { _ = client.Close() }, nil
	}

	store, err := respcache.NewSQLStore(db)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func applyLogLevel(level string) {
	if level == "" {
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping current")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

func readStdin() string {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
