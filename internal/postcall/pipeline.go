// Package postcall runs the best-effort enrichment pipeline after a call
// record has been persisted: customer linking, summarization, message
// linking, and billing. Every step is independent; a failed step is logged
// and the rest still run.
package postcall

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/billing"
	"github.com/voxline/relay/internal/metrics"
	"github.com/voxline/relay/internal/storage"
	"github.com/voxline/relay/internal/types"
)

const (
	pipelineTimeout = 60 * time.Second
	// Messages written by tool handlers during the call land shortly before
	// the record does; this window bounds how far back linking reaches.
	messageLinkWindow = 5 * time.Minute
)

// Pipeline enriches persisted call records. Summarizer and Reporter may be
// nil; their steps are then skipped.
type Pipeline struct {
	store      storage.Store
	summarizer Summarizer
	billing    billing.Reporter
	logger     zerolog.Logger
}

// NewPipeline creates a post-call pipeline
func NewPipeline(store storage.Store, summarizer Summarizer, reporter billing.Reporter, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		summarizer: summarizer,
		billing:    reporter,
		logger:     logger.With().Str("component", "postcall").Logger(),
	}
}

// Run executes the pipeline for one finalized call. It blocks until all
// steps finish; callers launch it in its own goroutine.
func (p *Pipeline) Run(record types.CallRecord, toolsInvoked map[string]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	logger := p.logger.With().
		Str("tenant_id", record.TenantID).
		Str("call_id", record.CallID).
		Logger()
	metrics.Get().RecordPostCallRun()

	// The persisted record is authoritative; the lookup confirms it is
	// readable before dependent steps update it
	if found, err := p.store.FindMostRecentCall(ctx, record.TenantID, record.CallerID); err != nil {
		p.stepFailed(logger, "find recent call", err)
	} else if found == nil || found.CallID != record.CallID {
		logger.Warn().Msg("most recent call lookup did not return this call")
	}

	p.linkCustomer(ctx, logger, record)
	p.summarize(ctx, logger, record)

	if _, ok := toolsInvoked[types.ToolTakeMessage]; ok {
		p.linkMessages(ctx, logger, record)
	}

	p.reportBilling(ctx, logger, record)
	logger.Info().Msg("post-call pipeline finished")
}

// linkCustomer upserts the caller as a customer and stamps the call record
// with the customer ID. Anonymous callers are skipped.
func (p *Pipeline) linkCustomer(ctx context.Context, logger zerolog.Logger, record types.CallRecord) {
	if record.CallerID == "" {
		logger.Debug().Msg("anonymous caller, skipping customer linking")
		return
	}

	customerID, err := p.store.UpsertCustomer(ctx, record.TenantID, record.CallerID)
	if err != nil {
		p.stepFailed(logger, "upsert customer", err)
		return
	}
	if err := p.store.LinkCustomerToCall(ctx, record.TenantID, record.SortKey, customerID); err != nil {
		p.stepFailed(logger, "link customer to call", err)
		return
	}
	logger.Debug().Str("customer_id", customerID).Msg("customer linked")
}

func (p *Pipeline) summarize(ctx context.Context, logger zerolog.Logger, record types.CallRecord) {
	if p.summarizer == nil {
		return
	}
	if record.Transcript == "" {
		logger.Debug().Msg("empty transcript, skipping summary")
		return
	}

	summary, err := p.summarizer.Summarize(ctx, record.Transcript)
	if err != nil {
		p.stepFailed(logger, "summarize", err)
		return
	}
	if err := p.store.SaveCallSummary(ctx, record.TenantID, record.SortKey, summary); err != nil {
		p.stepFailed(logger, "save summary", err)
		return
	}
	logger.Debug().Msg("summary saved")
}

func (p *Pipeline) linkMessages(ctx context.Context, logger zerolog.Logger, record types.CallRecord) {
	linked, err := p.store.LinkRecentMessages(ctx, record.TenantID, record.CallerID, messageLinkWindow, record.CallID)
	if err != nil {
		p.stepFailed(logger, "link messages", err)
		return
	}
	logger.Debug().Int("linked", linked).Msg("recent messages linked")
}

func (p *Pipeline) reportBilling(ctx context.Context, logger zerolog.Logger, record types.CallRecord) {
	if p.billing == nil {
		return
	}
	if err := p.billing.ReportCall(ctx, record.TenantID, record.Duration); err != nil {
		p.stepFailed(logger, "report billing", err)
	}
}

func (p *Pipeline) stepFailed(logger zerolog.Logger, step string, err error) {
	metrics.Get().RecordPostCallStepError()
	logger.Warn().Err(err).Str("step", step).Msg("post-call step failed")
}
