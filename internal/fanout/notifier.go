package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/common/metrics"
	"group-notifier/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultDedupTTL    = 24 * time.Hour
	DefaultDedupPrefix = "notify:dedup:"
)

// NotifierOptions wires the pipeline stages. Validator, Dedup and Recorder
// are optional.
type NotifierOptions struct {
	Resolver    *Resolver
	Lookup      *TokenLookup
	Dispatcher  *Dispatcher
	Validator   EventValidator
	Dedup       Deduplicator
	DedupTTL    time.Duration
	DedupPrefix string
	Recorder    EventRecorder
	Logger      logger.Logger
}

// Notifier runs one event through validate, dedup, resolve, lookup, build
// and dispatch.
type Notifier struct {
	resolver    *Resolver
	lookup      *TokenLookup
	dispatcher  *Dispatcher
	validator   EventValidator
	dedup       Deduplicator
	dedupTTL    time.Duration
	dedupPrefix string
	recorder    EventRecorder
	logger      logger.Logger
}

func NewNotifier(opts NotifierOptions) (*Notifier, error) {
	if opts.Resolver == nil || opts.Lookup == nil || opts.Dispatcher == nil {
		return nil, errors.New("resolver, lookup and dispatcher are required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if opts.DedupPrefix == "" {
		opts.DedupPrefix = DefaultDedupPrefix
	}
	return &Notifier{
		resolver:    opts.Resolver,
		lookup:      opts.Lookup,
		dispatcher:  opts.Dispatcher,
		validator:   opts.Validator,
		dedup:       opts.Dedup,
		dedupTTL:    opts.DedupTTL,
		dedupPrefix: opts.DedupPrefix,
		recorder:    opts.Recorder,
		logger:      opts.Logger.WithFields(map[string]interface{}{"component": "notifier"}),
	}, nil
}

// Notify processes one event. Zero recipients or zero tokens is a successful
// no-op. Returned errors wrap models.ErrInvalidEvent, models.ErrUnknownEventType,
// ErrTransportOutage or a store failure; in every error case the dedup claim
// is released so a redelivery is processed again.
func (n *Notifier) Notify(ctx context.Context, event models.Event) (*models.Report, error) {
	start := time.Now()
	report := &models.Report{
		InvocationID: uuid.New().String(),
		EventType:    event.Type,
		SourceID:     event.SourceID,
	}
	log := n.logger.WithFields(map[string]interface{}{
		"invocationId": report.InvocationID,
		"eventType":    string(event.Type),
		"sourceId":     event.SourceID,
	})

	if !event.Type.Valid() {
		n.record(ctx, event.Type, "rejected")
		return report, fmt.Errorf("%w: %q", models.ErrUnknownEventType, event.Type)
	}
	if n.validator != nil {
		if err := n.validator.Validate(event); err != nil {
			n.record(ctx, event.Type, "rejected")
			return report, err
		}
	}

	claimKey, duplicate := n.claim(ctx, event, log)
	if duplicate {
		report.Duplicate = true
		n.record(ctx, event.Type, "duplicate")
		log.Info("duplicate event skipped", nil)
		return report, nil
	}

	report, err := n.run(ctx, event, report, log)
	if err != nil {
		n.release(claimKey, log)
		n.record(ctx, event.Type, "failed")
		return report, err
	}

	n.record(ctx, event.Type, "processed")
	if n.recorder != nil {
		n.recorder.RecordEventDuration(ctx, string(event.Type), time.Since(start))
		n.recorder.RecordRecipients(ctx, string(event.Type), report.Recipients)
	}
	log.Info("event processed", map[string]interface{}{
		"recipients":  report.Recipients,
		"tokens":      report.Tokens,
		"delivered":   report.Delivered,
		"invalidated": report.Invalidated,
		"dropped":     report.Dropped,
	})
	return report, nil
}

func (n *Notifier) run(ctx context.Context, event models.Event, report *models.Report, log logger.Logger) (*models.Report, error) {
	recipients, err := n.resolver.Resolve(ctx, event)
	if err != nil {
		return report, fmt.Errorf("resolve recipients: %w", err)
	}
	report.Recipients = recipients.Len()
	if recipients.Len() == 0 {
		log.Debug("no recipients", nil)
		return report, nil
	}

	byRecipient, err := n.lookup.Lookup(ctx, recipients)
	if err != nil {
		return report, err
	}
	tokens := UniqueTokens(byRecipient)
	report.Tokens = len(tokens)
	if len(tokens) == 0 {
		log.Debug("no delivery tokens", map[string]interface{}{"recipients": recipients.Len()})
		return report, nil
	}

	payload, err := BuildPayload(event)
	if err != nil {
		return report, err
	}

	results, err := n.dispatcher.Dispatch(ctx, tokens, payload)
	report.Results = results
	for _, r := range results {
		switch r.Outcome {
		case models.OutcomeDelivered:
			report.Delivered++
		case models.OutcomeInvalidToken:
			report.Invalidated++
		case models.OutcomeDropped:
			report.Dropped++
		}
	}
	return report, err
}

// claim returns the held key and whether the event was already claimed. The
// store failing is treated as not claimed.
func (n *Notifier) claim(ctx context.Context, event models.Event, log logger.Logger) (string, bool) {
	if n.dedup == nil || event.DedupKey() == "" {
		return "", false
	}
	key := n.dedupPrefix + event.DedupKey()
	ok, err := n.dedup.Claim(ctx, key, n.dedupTTL)
	if err != nil {
		log.Warn("dedup store unavailable, processing anyway", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	if !ok {
		return "", true
	}
	return key, false
}

func (n *Notifier) release(key string, log logger.Logger) {
	if key == "" {
		return
	}
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.dedup.Release(ctx, key); err != nil {
		log.Warn("failed to release dedup claim", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (n *Notifier) record(ctx context.Context, t models.EventType, result string) {
	metrics.NotificationEvents.WithLabelValues(string(t), result).Inc()
	if n.recorder != nil {
		n.recorder.RecordEventProcessed(ctx, string(t), result)
	}
}
