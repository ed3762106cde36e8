package replication

import (
	"encoding/json"
	"fmt"

	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/model"
)

// EncodeNotification renders n in the wire format shared by all replicas
func EncodeNotification(n model.ChangeNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeNotification parses a payload received on the change channel.
// Payloads without a phrase or with a non-positive count are rejected.
func DecodeNotification(payload []byte) (model.ChangeNotification, error) {
	var n model.ChangeNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return n, errors.NewMalformedNotificationError(payload, err)
	}
	if n.Phrase == "" {
		return n, errors.NewMalformedNotificationError(payload, fmt.Errorf("missing phrase"))
	}
	if n.NewCount < 1 {
		return n, errors.NewMalformedNotificationError(payload, fmt.Errorf("newCount must be positive, got %d", n.NewCount))
	}
	return n, nil
}
