package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"paygate/internal/config"
	"paygate/internal/infra/i18n"
	"paygate/internal/infra/metrics"
	"paygate/internal/usecase"
)

// Server exposes payment initiation, verification, webhooks and referral rewards.
type Server struct {
	payments    usecase.PaymentUseCase
	webhooks    usecase.WebhookUseCase
	commissions usecase.CommissionUseCase
	limiter     Limiter
	tr          *i18n.Translator
	cfg         config.ServerConfig
	log         *zerolog.Logger

	srv *http.Server
}

// NewServer builds the HTTP layer. limiter may be nil to disable initiation rate limiting.
func NewServer(
	payments usecase.PaymentUseCase,
	webhooks usecase.WebhookUseCase,
	commissions usecase.CommissionUseCase,
	limiter Limiter,
	tr *i18n.Translator,
	cfg config.ServerConfig,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		payments:    payments,
		webhooks:    webhooks,
		commissions: commissions,
		limiter:     limiter,
		tr:          tr,
		cfg:         cfg,
		log:         &l,
	}
}

// Routes returns the full router with middlewares applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log, "/health", "/metrics"))
	r.Use(Recover(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Token"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))

		r.Route("/payments", func(r chi.Router) {
			r.With(RateLimit(s.limiter, s.cfg.RateLimit, s.cfg.RateLimitSpan, initiateKey, s.rejectRateLimited, s.log)).
				Post("/initiate/{provider}", s.handleInitiate)
			r.Post("/verify", s.handleVerify)
			r.Post("/webhook/{provider}", s.handleWebhook)
		})
		r.Post("/referrals/{referralID}/reward", s.handleReferralReward)
	})
	return r
}

// Start blocks serving on cfg.Addr until Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
