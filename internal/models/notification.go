package models

// NotificationPayload is the rendered push message. Data keys are a stable
// contract with the mobile client.
type NotificationPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Outcome is the state of a single delivery token.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeDelivered        Outcome = "delivered"
	OutcomeInvalidToken     Outcome = "invalid_token"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomeDropped          Outcome = "dropped"
)

// Final reports whether the outcome ends the token's lifecycle.
func (o Outcome) Final() bool {
	return o == OutcomeDelivered || o == OutcomeInvalidToken || o == OutcomeDropped
}

// TokenResult is what a transport reports for one token of one send attempt.
type TokenResult struct {
	Token   string
	Outcome Outcome
	Err     error
}

// DispatchResult is the settled outcome of one token across all attempts.
type DispatchResult struct {
	Token    string  `json:"-"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`
	Error    string  `json:"error,omitempty"`
}

// Report summarizes one notifier invocation.
type Report struct {
	InvocationID string           `json:"invocationId"`
	EventType    EventType        `json:"eventType"`
	SourceID     string           `json:"sourceId"`
	Recipients   int              `json:"recipients"`
	Tokens       int              `json:"tokens"`
	Delivered    int              `json:"delivered"`
	Invalidated  int              `json:"invalidated"`
	Dropped      int              `json:"dropped"`
	Duplicate    bool             `json:"duplicate"`
	Results      []DispatchResult `json:"-"`
}
