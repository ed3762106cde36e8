package model

import "time"

// ChangeNotification is broadcast on the counter store's channel whenever a
// replica learns the authoritative count of a phrase after an increment.
// The phrase/newCount keys are the wire contract shared by every replica.
type ChangeNotification struct {
	Phrase    string    `json:"phrase"`
	NewCount  int64     `json:"newCount"`
	ReplicaID string    `json:"replicaId,omitempty"` // Publishing replica, used to recognise our own echoes
	SentAt    time.Time `json:"sentAt,omitempty"`
}
