package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmylchreest/streamgate/internal/catalogue"
	"github.com/jmylchreest/streamgate/internal/config"
	internalhttp "github.com/jmylchreest/streamgate/internal/http"
	"github.com/jmylchreest/streamgate/internal/http/handlers"
	"github.com/jmylchreest/streamgate/internal/http/middleware"
	"github.com/jmylchreest/streamgate/internal/observability"
	"github.com/jmylchreest/streamgate/internal/relay"
	"github.com/jmylchreest/streamgate/internal/urlutil"
	"github.com/jmylchreest/streamgate/internal/version"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
	"github.com/spf13/cobra"
)

var serveCfgFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming relay gateway",
	Long:  "Starts the HTTP server that authenticates clients, selects providers, and relays live/VOD streams.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe(serveCfgFile)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveCfgFile, "config", "", "config file (default searches ./config.yaml, /etc/streamgate, $HOME/.streamgate)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	logger.Info("starting gateway", "version", version.Short())

	gateway, clips, tokenCodec, sessions, err := buildGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}
	sessions.StartSweep(cfg.Buffer.SessionIdleTTL.Duration() / 2)
	defer sessions.Stop()

	serverCfg := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     internalhttp.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AdminToken:      cfg.Server.AdminToken,
		RateLimit: middleware.RateLimitConfig{
			Enabled:  cfg.ReverseProxy.RateLimit.Enabled,
			PeriodMs: cfg.ReverseProxy.RateLimit.PeriodMs,
			Burst:    cfg.ReverseProxy.RateLimit.Burst,
		},
	}
	server := internalhttp.NewServer(serverCfg, logger, version.Short())

	handlers.NewHealthHandler(version.Short()).WithCircuitBreakerManager(gateway.Pool.CircuitBreakers()).Register(server.API())
	handlers.NewProvidersHandler(gateway.Pool).Register(server.API())
	handlers.NewSessionsHandler(sessions).Register(server.API())
	server.Router().Get("/docs", handlers.NewDocsHandler("streamgate API", "/openapi.json").ServeHTTP)

	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s", cfg.Server.Address())
	}
	handlers.NewStreamHandler(gateway, clips, tokenCodec, baseURL, logger).Mount(server.Router())

	resourceCfg := httpclient.DefaultConfig()
	resourceCfg.Logger = logger
	resourceFetcher := urlutil.NewResourceFetcher(resourceCfg)
	handlers.NewResourceHandler(gateway.Catalogue, gateway.Users, resourceFetcher, logger).Mount(server.Router())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx)
}

// buildGateway wires the streaming core's components from configuration. The
// channel catalogue and user store are the static, config-driven
// implementations; swapping in an external catalogue/user database only
// requires supplying different relay.ChannelCatalogue/relay.UserStore values.
func buildGateway(cfg *config.Config, logger *slog.Logger) (*relay.Gateway, *relay.ClipLibrary, *relay.TokenCodec, *relay.UserManager, error) {
	pool := relay.NewProviderPool(toProviderInputs(cfg.Providers), cfg.Buffer.GraceTimeout, nil, logger)
	sessions := relay.NewUserManager(cfg.Buffer.SessionIdleTTL.Duration(), logger)
	shared := relay.NewSharedStreamManager(logger)

	clips, err := relay.LoadClipLibrary(cfg.CustomStreamResponsePath, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading clip library: %w", err)
	}

	key, err := relay.DeriveKey(cfg.ReverseProxy.RewriteSecret)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("deriving token key: %w", err)
	}
	tokenCodec, err := relay.NewTokenCodec(key)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("building token codec: %w", err)
	}

	upstreamCfg := httpclient.DefaultConfig()
	upstreamCfg.Logger = logger

	gateway := &relay.Gateway{
		Catalogue:      catalogue.NewStaticCatalogue(cfg.Channels),
		Users:          catalogue.NewStaticUserStore(cfg.Accounts, cfg.User),
		Pool:           pool,
		Sessions:       sessions,
		Shared:         shared,
		Clips:          clips,
		Upstream:       catalogue.NewHTTPUpstream(upstreamCfg),
		GraceTimeout:   cfg.Buffer.GraceTimeout,
		GracePeriod:    cfg.Buffer.GracePeriod,
		SleepTimerMins: cfg.SleepTimerMins,
		Logger:         logger,
	}
	return gateway, clips, tokenCodec, sessions, nil
}

func toProviderInputs(in []config.ProviderInputConfig) []relay.ProviderInputConfig {
	out := make([]relay.ProviderInputConfig, 0, len(in))
	for _, p := range in {
		out = append(out, toProviderInput(p))
	}
	return out
}

func toProviderInput(p config.ProviderInputConfig) relay.ProviderInputConfig {
	var expDate *time.Time
	if p.ExpDate != nil {
		t := p.ExpDate.Time()
		expDate = &t
	}
	entry := relay.ProviderInputConfig{
		Name:           p.Name,
		MaxConnections: p.MaxConnections,
		Priority:       p.Priority,
		ExpDate:        expDate,
	}
	for _, alias := range p.Aliases {
		entry.Aliases = append(entry.Aliases, toProviderInput(alias))
	}
	return entry
}
