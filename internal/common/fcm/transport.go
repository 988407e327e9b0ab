// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// MaxMulticastTokens is the FCM limit for one multicast request.
const MaxMulticastTokens = 500

// MulticastSender is the subset of the messaging client the transport needs.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Transport sends one multicast request per batch of registration tokens.
type Transport struct {
	client   MulticastSender
	classify func(error) models.Outcome
	logger   logger.Logger
}

// NewTransport initialises a Firebase app. An empty credentialsFile falls
// back to application default credentials.
func NewTransport(ctx context.Context, credentialsFile, projectID string, log logger.Logger) (*Transport, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var fbConfig *firebase.Config
	if projectID != "" {
		fbConfig = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise fcm client: %w", err)
	}
	return NewTransportWithClient(client, log), nil
}

func NewTransportWithClient(client MulticastSender, log logger.Logger) *Transport {
	return &Transport{
		client:   client,
		classify: classifyError,
		logger:   log.WithFields(map[string]interface{}{"component": "fcm-transport"}),
	}
}

func (t *Transport) Name() string { return "fcm" }

func (t *Transport) MaxBatchSize() int { return MaxMulticastTokens }

// Send multicasts payload to tokens. A request-level failure is returned as
// an error; per-token failures are classified into outcomes.
func (t *Transport) Send(ctx context.Context, tokens []string, payload models.NotificationPayload) ([]models.TokenResult, error) {
	if len(tokens) > MaxMulticastTokens {
		return nil, fmt.Errorf("fcm multicast accepts at most %d tokens, got %d", MaxMulticastTokens, len(tokens))
	}

	resp, err := t.client.SendEachForMulticast(ctx, buildMessage(tokens, payload))
	if err != nil {
		return nil, fmt.Errorf("fcm multicast: %w", err)
	}

	results := make([]models.TokenResult, len(tokens))
	for i, token := range tokens {
		if i >= len(resp.Responses) || resp.Responses[i] == nil {
			results[i] = models.TokenResult{Token: token, Outcome: models.OutcomeTransientFailure, Err: fmt.Errorf("no response for token")}
			continue
		}
		r := resp.Responses[i]
		if r.Success {
			results[i] = models.TokenResult{Token: token, Outcome: models.OutcomeDelivered}
			continue
		}
		results[i] = models.TokenResult{Token: token, Outcome: t.classify(r.Error), Err: r.Error}
	}

	if resp.FailureCount > 0 {
		t.logger.Debug("multicast completed with failures", map[string]interface{}{
			"success": resp.SuccessCount,
			"failure": resp.FailureCount,
		})
	}
	return results, nil
}

func classifyError(err error) models.Outcome {
	switch {
	case messaging.IsUnregistered(err), messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err):
		return models.OutcomeInvalidToken
	default:
		// unavailable, internal and quota errors are retried like anything unknown
		return models.OutcomeTransientFailure
	}
}

func buildMessage(tokens []string, payload models.NotificationPayload) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
