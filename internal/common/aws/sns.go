// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// SNSPublisher is the subset of the SNS API the transport needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport pushes to SNS platform endpoints. Delivery tokens are endpoint
// ARNs and every token is a separate Publish call.
type SNSTransport struct {
	client SNSPublisher
	logger logger.Logger
}

func NewSNSTransport(ctx context.Context, region string, log logger.Logger) (*SNSTransport, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSTransportWithClient(sns.NewFromConfig(cfg), log), nil
}

func NewSNSTransportWithClient(client SNSPublisher, log logger.Logger) *SNSTransport {
	return &SNSTransport{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "sns-transport"}),
	}
}

func (t *SNSTransport) Name() string { return "sns" }

func (t *SNSTransport) MaxBatchSize() int { return 1 }

// Send publishes payload to each endpoint. It fails as a whole only when
// every endpoint hit an authorization or connectivity error.
func (t *SNSTransport) Send(ctx context.Context, tokens []string, payload models.NotificationPayload) ([]models.TokenResult, error) {
	message, err := snsMessage(payload)
	if err != nil {
		return nil, err
	}

	results := make([]models.TokenResult, 0, len(tokens))
	var outageErrs []error

	for _, endpoint := range tokens {
		_, err := t.client.Publish(ctx, &sns.PublishInput{
			TargetArn:        awssdk.String(endpoint),
			Message:          awssdk.String(message),
			MessageStructure: awssdk.String("json"),
		})
		if err == nil {
			results = append(results, models.TokenResult{Token: endpoint, Outcome: models.OutcomeDelivered})
			continue
		}

		outcome, outage := classifySNSError(err)
		if outage {
			outageErrs = append(outageErrs, err)
		}
		results = append(results, models.TokenResult{Token: endpoint, Outcome: outcome, Err: err})
	}

	if len(tokens) > 0 && len(outageErrs) == len(tokens) {
		return nil, fmt.Errorf("sns publish: %w", errors.Join(outageErrs...))
	}
	return results, nil
}

// classifySNSError maps an SNS error to a token outcome. outage marks errors
// that say nothing about the endpoint itself.
func classifySNSError(err error) (outcome models.Outcome, outage bool) {
	var (
		disabled *types.EndpointDisabledException
		notFound *types.NotFoundException
		badParam *types.InvalidParameterException
		authErr  *types.AuthorizationErrorException
	)
	switch {
	case errors.As(err, &disabled), errors.As(err, &notFound), errors.As(err, &badParam):
		return models.OutcomeInvalidToken, false
	case errors.As(err, &authErr):
		return models.OutcomeTransientFailure, true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		// throttling, internal errors and KMS hiccups clear up on retry
		return models.OutcomeTransientFailure, false
	}
	return models.OutcomeTransientFailure, true
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func snsMessage(payload models.NotificationPayload) (string, error) {
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": payload.Title, "body": payload.Body},
		"data":         payload.Data,
	})
	if err != nil {
		return "", fmt.Errorf("encode gcm message: %w", err)
	}

	apnsBody := map[string]interface{}{
		"aps": map[string]interface{}{"alert": apnsAlert{Title: payload.Title, Body: payload.Body}},
	}
	for k, v := range payload.Data {
		apnsBody[k] = v
	}
	apns, err := json.Marshal(apnsBody)
	if err != nil {
		return "", fmt.Errorf("encode apns message: %w", err)
	}

	msg, err := json.Marshal(map[string]string{
		"default":      payload.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("encode sns message: %w", err)
	}
	return string(msg), nil
}
