package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"paygate/internal/config"
	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
	payAdapters "paygate/internal/infra/adapters/payment"
	pg "paygate/internal/infra/db/postgres"
	"paygate/internal/infra/i18n"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
	"paygate/internal/infra/rabbitmq"
	red "paygate/internal/infra/redis"
	"paygate/internal/infra/worker"
	"paygate/internal/usecase"
)

// app holds the wired object graph shared by every subcommand.
type app struct {
	cfg  *config.Config
	log  *zerolog.Logger
	pool *pgxpool.Pool

	redis    red.Client
	limiter  *red.RateLimiter
	locker   *red.RedisLocker
	events   adapter.EventPublisher
	dispatch *worker.Pool
	tr       *i18n.Translator

	subs      repository.SubscriptionRepository
	users     repository.ReferrerRepository
	referrals repository.ReferralRepository

	payments    usecase.PaymentUseCase
	webhooks    usecase.WebhookUseCase
	credits     usecase.CreditUseCase
	commissions usecase.CommissionUseCase
	reconcile   usecase.ReconcileUseCase
}

func loadConfig(flags *rootFlags) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(flags.configPath, flags.dev)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	metrics.MustRegister()
	metrics.SetBuildInfo(Version, Commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a := &app{cfg: cfg, log: logger, pool: pool}

	tm := pg.NewTxManager(pool)
	attempts := pg.NewPaymentAttemptRepo(pool)
	txns := pg.NewTokenTransactionRepo(pool)
	a.subs = pg.NewSubscriptionRepo(pool)
	a.users = pg.NewUserRepo(pool)
	a.referrals = pg.NewReferralRepo(pool)

	// ---- Redis (optional) ----
	var tokens adapter.TokenCache
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
		a.limiter = red.NewRateLimiter(rc)
		a.locker = red.NewLocker(rc)
		tokens = red.NewTokenCache(rc, logger)
	} else {
		logger.Warn().Msg("redis.url not set: provider tokens are not cached, rate limiting and job locks are disabled")
	}

	// ---- i18n ----
	a.tr, err = i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLang)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("i18n: %w", err)
	}

	// ---- Events ----
	a.events = newPublisher(cfg.RabbitMQ, logger)

	// ---- Gateways ----
	gateways := buildGateways(cfg, tokens, a.tr, logger)

	// ---- Use cases ----
	a.commissions = usecase.NewCommissionUseCase(a.users, a.referrals, pg.NewCommissionRepo(pool), pg.NewAffiliateRewardRepo(pool), tm, logger)
	a.dispatch = worker.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.Queue, logger)
	a.dispatch.Start(ctx)
	a.credits = usecase.NewCreditUseCase(attempts, a.subs, txns, tm, logger,
		worker.NewAsyncListener(a.dispatch, a.commissions, logger),
		worker.NewAsyncListener(a.dispatch, rabbitmq.NewCreditRelay(a.events, logger), logger),
	)
	a.payments = usecase.NewPaymentUseCase(gateways, attempts, a.credits, a.tr, usecase.PaymentOptions{
		RetryAttempts:  cfg.Payment.RetryAttempts,
		RetryBackoff:   cfg.Payment.RetryBackoff,
		Currency:       cfg.Payment.Currency,
		CreditOnVerify: cfg.Reconcile.CreditsOnVerify(),
	}, logger)
	a.webhooks = usecase.NewWebhookUseCase(gateways, attempts, a.credits, logger)
	a.reconcile = usecase.NewReconcileUseCase(attempts, a.subs, a.payments, usecase.ReconcileOptions{
		StaleAfter:  cfg.Reconcile.StaleAfter,
		ExpireAfter: cfg.Reconcile.ExpireAfter,
		BatchSize:   cfg.Reconcile.BatchSize,
	}, logger)
	return a, nil
}

func newPublisher(cfg config.RabbitMQConfig, logger *zerolog.Logger) adapter.EventPublisher {
	if cfg.URL == "" {
		logger.Warn().Msg("rabbitmq.url not set: credit events stay in-process")
		return rabbitmq.NewFallbackPublisher(logger)
	}
	p, err := rabbitmq.NewEventProducer(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		logger.Error().Err(err).Msg("rabbitmq unavailable: credit events stay in-process")
		return rabbitmq.NewFallbackPublisher(logger)
	}
	return p
}

// buildGateways constructs every provider. A provider with incomplete
// credentials is replaced by a DisabledGateway so its calls fail with the
// configuration error instead of aborting startup.
func buildGateways(cfg *config.Config, tokens adapter.TokenCache, tr *i18n.Translator, logger *zerolog.Logger) []adapter.PaymentGateway {
	pc := cfg.Payment
	dev := cfg.Runtime.Dev
	var out []adapter.PaymentGateway

	add := func(p model.Provider, g adapter.PaymentGateway, err error) {
		if err != nil {
			var ce *domain.ConfigurationError
			if errors.As(err, &ce) {
				logger.Warn().Str("provider", string(p)).Str("field", ce.Field).Msg("provider disabled: incomplete configuration")
			} else {
				logger.Error().Err(err).Str("provider", string(p)).Msg("provider disabled")
			}
			out = append(out, payAdapters.NewDisabledGateway(p, err))
			return
		}
		logger.Info().Str("provider", string(p)).Msg("provider enabled")
		out = append(out, g)
	}

	orange, err := payAdapters.NewOrangeGateway(pc.Orange, pc.Timeout, tokens, logger, dev)
	add(model.ProviderOrange, orange, err)
	sama, err := payAdapters.NewSamaGateway(pc.Sama, pc.Timeout, tokens, tr, logger, dev)
	add(model.ProviderSama, sama, err)
	cinetpay, err := payAdapters.NewCinetPayGateway(pc.CinetPay, pc.Currency, pc.Timeout, logger)
	add(model.ProviderCinetPay, cinetpay, err)
	return out
}

// close releases resources in reverse construction order. Queued listener
// work is drained before the publisher and pool go away.
func (a *app) close() {
	if a.dispatch != nil {
		a.dispatch.Stop()
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn().Err(err).Msg("event publisher close failed")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
