package models

// Identity is the slice of a user record the notifier reads.
type Identity struct {
	ID            string `json:"id"`
	DeliveryToken string `json:"fcmToken,omitempty"`
}

type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}
