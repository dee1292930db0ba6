package worker

import (
	"context"

	"github.com/rs/zerolog"

	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
)

var _ adapter.CreditListener = (*AsyncListener)(nil)

// AsyncListener moves post-credit side effects (commissions, event relay) off
// the confirmation path. When the pool cannot take the event it runs inline;
// events are never dropped.
type AsyncListener struct {
	pool  *Pool
	inner adapter.CreditListener
	log   *zerolog.Logger
}

func NewAsyncListener(pool *Pool, inner adapter.CreditListener, logger *zerolog.Logger) *AsyncListener {
	l := logger.With().Str("component", "AsyncListener").Logger()
	return &AsyncListener{pool: pool, inner: inner, log: &l}
}

func (a *AsyncListener) OnCredited(ctx context.Context, ev model.Credited) {
	err := a.pool.Submit(func(ctx context.Context) error {
		a.inner.OnCredited(ctx, ev)
		return nil
	})
	if err != nil {
		a.log.Warn().Err(err).Str("reference", ev.Reference).Msg("dispatching credit event inline")
		a.inner.OnCredited(ctx, ev)
	}
}
