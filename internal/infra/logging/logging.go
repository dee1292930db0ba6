package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/config"
)

const service = "paygate"

// New builds the process logger. Dev mode and format "console" use the
// human-readable writer. Sampling thins debug and info events only, so
// warnings and errors are always kept.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newLogger(os.Stdout, cfg, dev)
}

func newLogger(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()

	if cfg.Sampling && !dev {
		l = l.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BurstSampler{Burst: 50, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 10}},
		})
	}
	return &l
}

type ctxKey struct{}

// fields are the request-scoped identifiers carried on a context.
type fields struct {
	traceID   string
	userID    string
	reference string
	provider  string
}

func fromCtx(ctx context.Context) fields {
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

func update(ctx context.Context, set func(*fields)) context.Context {
	f := fromCtx(ctx)
	set(&f)
	return context.WithValue(ctx, ctxKey{}, f)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.traceID = id })
}

func WithUserID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.userID = id })
}

func WithReference(ctx context.Context, ref string) context.Context {
	return update(ctx, func(f *fields) { f.reference = ref })
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return update(ctx, func(f *fields) { f.provider = provider })
}

// With returns base enriched with whatever identifiers ctx carries.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	f := fromCtx(ctx)
	c := base.With()
	for _, kv := range [...]struct{ k, v string }{
		{"trace_id", f.traceID},
		{"user_id", f.userID},
		{"reference", f.reference},
		{"provider", f.provider},
	} {
		if kv.v != "" {
			c = c.Str(kv.k, kv.v)
		}
	}
	l := c.Logger()
	return &l
}

// TraceDuration logs entry and exit of name at trace level.
//
//	defer logging.TraceDuration(log, "CreditUC.ApplyCredit")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact masks tokens and keys outside dev mode, leaving a short prefix and
// suffix for correlation.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}
