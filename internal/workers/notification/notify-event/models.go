package notifyevent

import "group-notifier/internal/models"

const (
	TaskTypeGroupInvitation = "notify.group-invitation"
	TaskTypeGroupMessage    = "notify.group-message"
)

// taskTypes maps each event type to its job type and worker config key.
var taskTypes = map[models.EventType]struct {
	taskType   string
	workerName string
}{
	models.EventTypeInvitation:   {TaskTypeGroupInvitation, "notify-group-invitation"},
	models.EventTypeGroupMessage: {TaskTypeGroupMessage, "notify-group-message"},
}

// envelopeKeys are job variables that describe the event rather than its payload.
var envelopeKeys = map[string]bool{
	"type":     true,
	"sourceId": true,
	"actorId":  true,
	"payload":  true,
}

// Output is written back to the process as job variables.
type Output struct {
	Notified bool           `json:"notified"`
	Report   *models.Report `json:"notificationReport,omitempty"`
}
