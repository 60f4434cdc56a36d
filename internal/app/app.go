// Package app assembles the support assistant from configuration: adapters,
// ticket store, limiter, chat pipeline and HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	chathandler "github.com/boddenberg/support-assistant-bfa-go/internal/chat/handler"
	chatinfra "github.com/boddenberg/support-assistant-bfa-go/internal/chat/infra"
	chatport "github.com/boddenberg/support-assistant-bfa-go/internal/chat/port"
	chatservice "github.com/boddenberg/support-assistant-bfa-go/internal/chat/service"
	"github.com/boddenberg/support-assistant-bfa-go/internal/config"
	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/handler"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/cache"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/client"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/invoice"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/memory"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/ratelimit"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"
	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App is the assembled process. Close releases what Build opened.
type App struct {
	Handler    http.Handler
	Chat       *chatservice.ChatService
	Classifier *chatservice.Classifier
	Auth       *service.AdminAuth
	Tickets    *service.TicketService
	Metrics    *observability.Metrics

	logger  *zap.Logger
	closers []func() error
}

// Build wires every component named by cfg. On error, whatever was
// already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{Metrics: observability.NewMetrics(), logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Language model ---
	llm, err := buildCompleter(ctx, cfg, httpClient, resilienceCfg, a.Metrics, logger)
	if err != nil {
		return nil, err
	}

	// --- Adapters ---
	commerce := client.NewShopifyClient(httpClient, cfg.ShopURL, cfg.ShopifyAPIVersion, cfg.ShopifyAccessToken,
		resilience.NewCircuitBreaker("shopify"), logger)
	telephony := client.NewCallBridgeClient(httpClient, cfg.OutboundCallURL,
		resilience.NewCircuitBreaker("telephony"), logger)
	mailer := client.NewPostmarkMailer(httpClient, cfg.PostmarkBaseURL, cfg.PostmarkServerToken, cfg.PostmarkFrom,
		resilience.NewCircuitBreaker("email"), logger)

	var geocoder port.Geocoder = unconfiguredGeocoder{}
	if cfg.GoogleMapsAPIKey != "" {
		// maps.WithHTTPClient rewrites the client's transport, so it gets its own.
		mapsHTTP := &http.Client{Timeout: cfg.HTTPTimeout}
		g, err := client.NewPlacesGeocoder(mapsHTTP, cfg.GoogleMapsAPIKey, cfg.GoogleMapsBaseURL,
			resilience.NewCircuitBreaker("geocoder"), logger)
		if err != nil {
			return nil, fmt.Errorf("geocoder: %w", err)
		}
		geocoder = g
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, address changes will fail")
	}

	// --- Ticket store ---
	store, err := a.buildTicketStore(ctx, cfg, httpClient, resilienceCfg)
	if err != nil {
		return nil, err
	}
	checks := []handler.HealthCheck{
		{Name: "ticket-store", Critical: true, Check: store.Ping},
	}

	// --- Rate limiter ---
	limiter, limiterCheck, err := a.buildLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if limiterCheck != nil {
		checks = append(checks, *limiterCheck)
	}

	// --- Chat pipeline ---
	charts, err := chatservice.LoadSizeCharts()
	if err != nil {
		return nil, fmt.Errorf("size charts: %w", err)
	}

	titles := cache.New[[]string](cfg.CacheTTL)
	a.closers = append(a.closers, func() error { titles.Close(); return nil })
	catalog := chatservice.NewCatalog(commerce, titles, a.Metrics, logger)

	responder := chatservice.NewResponder(llm, cfg.ReplyTimeout, logger)
	poller := chatservice.NewCallPoller(telephony, chatservice.PollConfig{
		Interval: cfg.CallPollInterval,
		SoftCap:  cfg.CallSoftCap,
		HardCap:  cfg.CallHardCap,
	}, a.Metrics, logger)

	delivery := chatservice.NewChangeDeliveryStrategy(commerce, geocoder, telephony, poller, cfg.CarrierPhoneNumber, a.Metrics, logger)
	router := chatservice.NewIntentRouter([]chatservice.ChatStrategy{
		chatservice.NewOrderTrackingStrategy(commerce, responder, a.Metrics, logger),
		chatservice.NewReturnsStrategy(cfg.ReturnsPortalURL, responder, a.Metrics),
		chatservice.NewDeliveryIssueStrategy(commerce, mailer, cfg.SupportMailbox, responder, a.Metrics, logger),
		delivery,
		chatservice.NewProductSizingStrategy(commerce, charts, responder, a.Metrics, logger),
		chatservice.NewUpdateOrderStrategy(commerce, delivery, responder, cfg.ReturnsPortalURL, a.Metrics, logger),
		chatservice.NewOtherOrderStrategy(commerce, responder, a.Metrics, logger),
		chatservice.NewRestockStrategy(commerce, cfg.StorefrontURL, a.Metrics, logger),
		chatservice.NewConversationEndStrategy(a.Metrics),
		chatservice.NewPromoCodeStrategy(commerce, a.Metrics, logger),
		chatservice.NewInvoiceRequestStrategy(commerce, invoice.NewPDFRenderer(), mailer, a.Metrics, logger),
	}, responder, a.Metrics, logger)

	a.Classifier = chatservice.NewClassifier(llm, catalog, cfg.ReturnsPortalURL, a.Metrics, logger)
	a.Chat = chatservice.NewChatService(a.Classifier, router, store, chatservice.Timeouts{
		Classify: cfg.ClassifyTimeout,
		Request:  cfg.RequestTimeout,
	}, a.Metrics, logger)

	// --- Admin ---
	a.Tickets = service.NewTicketService(store, logger)
	a.Auth = service.NewAdminAuth(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	a.Handler = handler.NewRouter(handler.Deps{
		Chat:    chathandler.ChatHandler(a.Chat, logger),
		Auth:    a.Auth,
		Tickets: a.Tickets,
		Limiter: limiter,
		Checks:  checks,
		Metrics: a.Metrics,
		Logger:  logger,
	})
	return a, nil
}

func buildCompleter(
	ctx context.Context,
	cfg *config.Config,
	httpClient *http.Client,
	resilienceCfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (chatport.Completer, error) {
	var next chatport.Completer
	switch cfg.LLMProvider {
	case "gemini":
		g, err := chatinfra.NewGeminiClient(ctx, cfg.GeminiAPIKey, "", cfg.GeminiModel, httpClient)
		if err != nil {
			return nil, err
		}
		next = g
	default:
		next = chatinfra.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, httpClient)
	}
	logger.Info("language model configured", zap.String("provider", cfg.LLMProvider))
	return chatinfra.NewResilientCompleter(next, cfg.LLMProvider, resilience.NewCircuitBreaker("llm"), resilienceCfg, metrics, logger), nil
}

func (a *App) buildTicketStore(ctx context.Context, cfg *config.Config, httpClient *http.Client, resilienceCfg resilience.Config) (port.TicketStore, error) {
	switch cfg.TicketStore {
	case "supabase":
		a.logger.Info("using Supabase ticket store", zap.String("supabase_url", cfg.SupabaseURL))
		c := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"), resilienceCfg, a.logger)
		return supabase.NewTicketStore(c), nil
	case "postgres":
		a.logger.Info("using Postgres ticket store")
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return postgres.NewTicketStore(db, a.logger), nil
	default:
		a.logger.Info("using in-memory ticket store")
		return memory.NewTicketStore(), nil
	}
}

func (a *App) buildLimiter(ctx context.Context, cfg *config.Config) (port.RateLimiter, *handler.HealthCheck, error) {
	if cfg.RateLimitBackend == "redis" {
		rdb, err := ratelimit.OpenRedis(ctx, ratelimit.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		check := &handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}
		return ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow), check, nil
	}

	l := ratelimit.NewFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
	a.closers = append(a.closers, func() error { l.Close(); return nil })
	return l, nil, nil
}

// Close releases connections and stops background goroutines, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type unconfiguredGeocoder struct{}

func (unconfiguredGeocoder) ValidateAddress(context.Context, string) (*domain.AddressValidation, error) {
	return nil, &domain.ErrExternalService{Service: "geocoder", Err: errors.New("GOOGLE_MAPS_API_KEY not set")}
}
