// Package billing reports completed calls as usage events. Billing is
// strictly fire-and-forget; a reporting failure never affects the call.
package billing

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/billing/meterevent"
)

// Reporter records one billable call
type Reporter interface {
	ReportCall(ctx context.Context, tenantID string, durationSeconds float64) error
}

// StripeReporter emits billing meter events. Tenant IDs double as the Stripe
// customer reference on the meter's payload.
type StripeReporter struct {
	meter  string
	logger zerolog.Logger
}

// NewStripeReporter configures the global Stripe client and returns a
// reporter for the named meter
func NewStripeReporter(apiKey, meter string, logger zerolog.Logger) *StripeReporter {
	stripe.Key = apiKey
	return &StripeReporter{
		meter:  meter,
		logger: logger.With().Str("component", "billing").Logger(),
	}
}

func (r *StripeReporter) ReportCall(ctx context.Context, tenantID string, durationSeconds float64) error {
	params := &stripe.BillingMeterEventParams{
		EventName: stripe.String(r.meter),
		Payload: map[string]string{
			"stripe_customer_id": tenantID,
			"value":              strconv.FormatFloat(durationSeconds, 'f', 0, 64),
		},
	}
	params.Context = ctx

	if _, err := meterevent.New(params); err != nil {
		r.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to report meter event")
		return err
	}

	r.logger.Debug().Str("tenant_id", tenantID).Float64("duration", durationSeconds).Msg("call reported")
	return nil
}
