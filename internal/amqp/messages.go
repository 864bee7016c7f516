package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TallyChangedMessage announces one committed tally mutation. ID is unique per
// change so consumers can drop redeliveries.
type TallyChangedMessage struct {
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	Date       string    `json:"date"`
	Count      float64   `json:"count"`
	Today      string    `json:"today"`
	TodayCount float64   `json:"today_count"`
	Average    float64   `json:"average"`
	Version    uint64    `json:"version"`
	Persisted  bool      `json:"persisted"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTallyChangedMessage creates a message with a fresh id and the current time.
func NewTallyChangedMessage(op, date string, count float64) *TallyChangedMessage {
	return &TallyChangedMessage{
		ID:        uuid.NewString(),
		Op:        op,
		Date:      date,
		Count:     count,
		Persisted: true,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TallyChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TallyChangedMessageFromJSON parses and sanity-checks a message body.
func TallyChangedMessageFromJSON(data []byte) (*TallyChangedMessage, error) {
	var msg TallyChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.Op == "" {
		return nil, errors.New("tally message missing id or op")
	}
	return &msg, nil
}
