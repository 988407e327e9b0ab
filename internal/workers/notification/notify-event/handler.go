package notifyevent

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"group-notifier/internal/common/camunda"
	"group-notifier/internal/common/config"
	"group-notifier/internal/common/errors"
	"group-notifier/internal/common/logger"
	"group-notifier/internal/common/metrics"
	"group-notifier/internal/fanout"
	"group-notifier/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Notifier runs an event through the notification pipeline.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) (*models.Report, error)
}

// Handler serves the job type of one event type.
type Handler struct {
	config     *Config
	eventType  models.EventType
	taskType   string
	notifier   Notifier
	camunda    *camunda.Client
	errHandler *errors.ErrorHandler
	logger     logger.Logger
	worker     *camunda.Worker
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Camunda      *camunda.Client
	Notifier     Notifier
	EventType    models.EventType
	CustomConfig *Config
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	tt, ok := taskTypes[opts.EventType]
	if !ok {
		return nil, fmt.Errorf("no job type for event type %q", opts.EventType)
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notifier is required for %s", tt.taskType)
	}

	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig, tt.workerName)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", tt.workerName, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": tt.taskType})

	return &Handler{
		config:     workerConfig,
		eventType:  opts.EventType,
		taskType:   tt.taskType,
		notifier:   opts.Notifier,
		camunda:    opts.Camunda,
		errHandler: errors.NewErrorHandler(log, workerConfig.MaxRetries),
		logger:     log,
	}, nil
}

// Handle completes the job with the notification report or reports the
// failure to the engine. The processing error is returned for logging.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(h.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(h.taskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing notification job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	if !h.config.Enabled {
		h.completeJob(ctx, client, job, &Output{Notified: false})
		return nil
	}

	event, err := h.parseInput(job)
	if err == nil {
		var report *models.Report
		report, err = h.Execute(ctx, event)
		if err == nil {
			h.completeJob(ctx, client, job, &Output{Notified: report.Delivered > 0, Report: report})
			metrics.WorkerJobsCompleted.WithLabelValues(h.taskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(h.taskType).Observe(time.Since(startTime).Seconds())
			return nil
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(h.taskType, errors.ExtractErrorCode(err)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
	return err
}

// parseInput builds the event from job variables. Variables either carry the
// event envelope with a payload object, or the payload fields at top level.
func (h *Handler) parseInput(job entities.Job) (models.Event, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return models.Event{}, errors.NewInputParsingFailedError(err)
	}

	event := models.Event{Type: h.eventType}

	if t, ok := variables["type"].(string); ok && t != "" && models.EventType(t) != h.eventType {
		return models.Event{}, errors.NewEventValidationFailedError(
			fmt.Errorf("job type %s cannot carry %q events", h.taskType, t))
	}
	if v, ok := variables["sourceId"].(string); ok {
		event.SourceID = v
	}
	if v, ok := variables["actorId"].(string); ok {
		event.ActorID = v
	}

	if payload, ok := variables["payload"].(map[string]interface{}); ok {
		event.Payload = payload
	} else {
		event.Payload = make(map[string]interface{}, len(variables))
		for k, v := range variables {
			if !envelopeKeys[k] {
				event.Payload[k] = v
			}
		}
	}

	return event, nil
}

// Execute runs the notifier and maps its failures onto job error codes.
func (h *Handler) Execute(ctx context.Context, event models.Event) (*models.Report, error) {
	report, err := h.notifier.Notify(ctx, event)
	if err == nil {
		return report, nil
	}

	switch {
	case stderrors.Is(err, models.ErrUnknownEventType):
		return nil, errors.NewUnknownEventTypeError(err)
	case stderrors.Is(err, models.ErrInvalidEvent):
		return nil, errors.NewEventValidationFailedError(err)
	case stderrors.Is(err, fanout.ErrTransportOutage):
		return nil, errors.NewTransportOutageError(err)
	default:
		return nil, errors.NewRecipientLookupFailedError(err)
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	variables := map[string]interface{}{"notified": output.Notified}
	if output.Report != nil {
		variables["notificationReport"] = map[string]interface{}{
			"invocationId": output.Report.InvocationID,
			"eventType":    string(output.Report.EventType),
			"sourceId":     output.Report.SourceID,
			"recipients":   output.Report.Recipients,
			"tokens":       output.Report.Tokens,
			"delivered":    output.Report.Delivered,
			"invalidated":  output.Report.Invalidated,
			"dropped":      output.Report.Dropped,
			"duplicate":    output.Report.Duplicate,
		}
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}

// Register opens the job worker unless the worker is disabled.
func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.logger.Info("worker is disabled, skipping registration", nil)
		return nil
	}
	if h.camunda == nil {
		return fmt.Errorf("camunda client is required to register %s", h.taskType)
	}

	h.worker = camunda.NewWorker(h.camunda.GetClient(), camunda.WorkerOptions{
		TaskType:      h.taskType,
		MaxJobsActive: h.config.MaxJobsActive,
		Timeout:       h.config.Timeout,
	}, h, h.logger)
	return nil
}

func (h *Handler) Close() {
	if h.worker != nil {
		h.worker.Stop()
		h.worker = nil
	}
}

func (h *Handler) GetTaskType() string {
	return h.taskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
