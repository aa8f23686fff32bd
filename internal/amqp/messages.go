package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultReason is used when a refresh message carries no reason.
const DefaultReason = "amqp"

// RefreshMessage asks the dashboard to reload its snapshot from the store.
type RefreshMessage struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshMessage(reason string) *RefreshMessage {
	return &RefreshMessage{
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshMessageFromJSON decodes a message body. Unknown fields are ignored; an
// empty body or non-object payload is an error.
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty message body")
	}
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.Reason = strings.TrimSpace(msg.Reason)
	if msg.Reason == "" {
		msg.Reason = DefaultReason
	}
	return &msg, nil
}
