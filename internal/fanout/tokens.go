package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"
)

// TokenLookup fetches delivery tokens for a recipient set.
type TokenLookup struct {
	identities  IdentityStore
	concurrency int
	logger      logger.Logger
}

func NewTokenLookup(identities IdentityStore, concurrency int, log logger.Logger) *TokenLookup {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TokenLookup{identities: identities, concurrency: concurrency, logger: log}
}

// Lookup maps each recipient that has a token to that token. Recipients
// without a record, without a token, or whose read failed are left out; one
// failed read never affects the others. If ctx ends before every read has
// finished the partial map is discarded and ctx.Err() is returned.
func (l *TokenLookup) Lookup(ctx context.Context, recipients RecipientSet) (map[string]string, error) {
	tokens := make(map[string]string, recipients.Len())
	if recipients.Len() == 0 {
		return tokens, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, l.concurrency)

	for _, id := range recipients.Sorted() {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			identity, err := l.identities.GetIdentity(ctx, id)
			switch {
			case errors.Is(err, models.ErrNotFound):
				l.logger.Debug("recipient has no identity record", map[string]interface{}{"recipientId": id})
				return
			case err != nil:
				l.logger.Warn("token read failed, skipping recipient", map[string]interface{}{
					"recipientId": id,
					"error":       err.Error(),
				})
				return
			case identity.DeliveryToken == "":
				return
			}

			mu.Lock()
			tokens[id] = identity.DeliveryToken
			mu.Unlock()
		}()
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("token lookup aborted: %w", err)
	}
	return tokens, nil
}

// UniqueTokens collapses a recipient→token map into a sorted token set.
func UniqueTokens(byRecipient map[string]string) []string {
	seen := make(map[string]struct{}, len(byRecipient))
	out := make([]string, 0, len(byRecipient))
	for _, token := range byRecipient {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
