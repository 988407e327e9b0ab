package fanout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/common/metrics"
	"group-notifier/internal/models"
)

// DispatcherConfig bounds retries and parallelism of a dispatch.
type DispatcherConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Concurrency int
}

var DefaultDispatcherConfig = DispatcherConfig{
	MaxRetries:  3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Concurrency: 8,
}

// Dispatcher sends one payload to a set of tokens and settles every token to
// exactly one final outcome.
type Dispatcher struct {
	transport   Transport
	invalidator TokenInvalidator
	config      DispatcherConfig
	logger      logger.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(transport Transport, invalidator TokenInvalidator, config DispatcherConfig, log logger.Logger) *Dispatcher {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Dispatcher{
		transport:   transport,
		invalidator: invalidator,
		config:      config,
		logger:      log.WithFields(map[string]interface{}{"component": "dispatcher", "transport": transport.Name()}),
		wait:        sleepContext,
	}
}

// Dispatch delivers payload to tokens. Invalid tokens are cleared from the
// identity store; transient failures are retried with exponential backoff and
// dropped once retries run out. The returned error is nil or wraps
// ErrTransportOutage; results are returned in both cases, in token order.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, payload models.NotificationPayload) ([]models.DispatchResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(d.transport.Name()).Observe(time.Since(start).Seconds())
	}()

	state := make(map[string]*models.DispatchResult, len(tokens))
	for _, t := range tokens {
		state[t] = &models.DispatchResult{Token: t, Outcome: models.OutcomePending}
	}

	pending := uniqueInOrder(tokens)
	var outageErr error
	// once anything was delivered a failed round is retried token by token
	// instead of failing the whole event
	delivered := false

	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > 0 {
			if err := d.wait(ctx, d.backoff(attempt-1)); err != nil {
				d.settle(state, pending, models.OutcomeDropped, err)
				break
			}
		}

		results, err := d.sendRound(ctx, pending, payload)
		if err != nil && !delivered {
			outageErr = fmt.Errorf("%w: %v", ErrTransportOutage, err)
			for _, t := range pending {
				state[t].Attempts++
			}
			d.settle(state, pending, models.OutcomeDropped, err)
			break
		}

		var retry []string
		for _, t := range pending {
			st := state[t]
			st.Attempts++
			res := results[t]

			switch res.Outcome {
			case models.OutcomeDelivered:
				st.Outcome = models.OutcomeDelivered
				delivered = true
			case models.OutcomeInvalidToken:
				st.Outcome = models.OutcomeInvalidToken
				st.Error = errString(res.Err)
				d.invalidate(ctx, t)
			default:
				st.Error = errString(res.Err)
				if attempt < d.config.MaxRetries && ctx.Err() == nil {
					st.Outcome = models.OutcomeTransientFailure
					retry = append(retry, t)
				} else {
					st.Outcome = models.OutcomeDropped
				}
			}
		}
		pending = retry
	}

	out := make([]models.DispatchResult, 0, len(tokens))
	for _, t := range uniqueInOrder(tokens) {
		st := state[t]
		metrics.NotificationDeliveries.WithLabelValues(d.transport.Name(), string(st.Outcome)).Inc()
		out = append(out, *st)
	}

	if outageErr != nil {
		d.logger.Error("push transport outage", map[string]interface{}{
			"tokens": len(tokens),
			"error":  outageErr.Error(),
		})
	}
	return out, outageErr
}

// sendRound sends every pending token once, in batches of the transport's
// size and with bounded parallelism. Tokens of a failed batch are reported
// transient. The error is non-nil only when every batch failed as a whole.
func (d *Dispatcher) sendRound(ctx context.Context, tokens []string, payload models.NotificationPayload) (map[string]models.TokenResult, error) {
	batches := splitBatches(tokens, d.transport.MaxBatchSize())

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]models.TokenResult, len(tokens))
	var batchErrs []error
	sem := make(chan struct{}, d.config.Concurrency)

	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.NotificationSendAttempts.WithLabelValues(d.transport.Name()).Inc()
			res, err := d.transport.Send(ctx, batch, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batchErrs = append(batchErrs, err)
				for _, t := range batch {
					results[t] = models.TokenResult{Token: t, Outcome: models.OutcomeTransientFailure, Err: err}
				}
				return
			}
			for _, r := range res {
				results[r.Token] = r
			}
		}()
	}
	wg.Wait()

	for _, t := range tokens {
		if _, ok := results[t]; !ok {
			results[t] = models.TokenResult{
				Token:   t,
				Outcome: models.OutcomeTransientFailure,
				Err:     errors.New("transport reported no result for token"),
			}
		}
	}
	if len(batchErrs) == len(batches) {
		return results, errors.Join(batchErrs...)
	}
	return results, nil
}

func (d *Dispatcher) invalidate(ctx context.Context, token string) {
	if d.invalidator == nil {
		return
	}
	n, err := d.invalidator.InvalidateToken(ctx, token)
	if err != nil {
		d.logger.Warn("failed to invalidate token", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		metrics.TokensInvalidated.Add(float64(n))
	}
}

func (d *Dispatcher) settle(state map[string]*models.DispatchResult, tokens []string, outcome models.Outcome, err error) {
	for _, t := range tokens {
		st := state[t]
		if st.Outcome.Final() {
			continue
		}
		st.Outcome = outcome
		if err != nil {
			st.Error = err.Error()
		}
	}
}

// backoff returns BaseDelay * 2^n capped at MaxDelay. Doubling stops at the
// cap, and without one saturates instead of overflowing.
func (d *Dispatcher) backoff(n int) time.Duration {
	limit := d.config.MaxDelay
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}
	delay := d.config.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 0; i < n && delay < limit; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func splitBatches(tokens []string, size int) [][]string {
	if size <= 0 || size > len(tokens) {
		size = len(tokens)
	}
	batches := make([][]string, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}

func uniqueInOrder(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
