package rabbitmq

import (
	"context"

	"github.com/rs/zerolog"

	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
)

const RoutingKeyCredited = "payment.credited"

var _ adapter.CreditListener = (*CreditRelay)(nil)

// CreditRelay forwards Credited events to the broker. Publish failures are logged;
// the credit has already committed.
type CreditRelay struct {
	pub adapter.EventPublisher
	log *zerolog.Logger
}

func NewCreditRelay(pub adapter.EventPublisher, logger *zerolog.Logger) *CreditRelay {
	l := logger.With().Str("component", "CreditRelay").Logger()
	return &CreditRelay{pub: pub, log: &l}
}

func (r *CreditRelay) OnCredited(ctx context.Context, ev model.Credited) {
	if err := r.pub.Publish(ctx, RoutingKeyCredited, ev); err != nil {
		r.log.Error().Err(err).Str("reference", ev.Reference).Str("event_id", ev.EventID).Msg("failed to publish credited event")
	}
}
