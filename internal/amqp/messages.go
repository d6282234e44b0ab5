package amqp

import (
	"encoding/json"
	"time"

	"tally/internal/core"
)

// NotificationMessage announces a notification appended to a user's feed.
type NotificationMessage struct {
	UserID       string            `json:"userId"`
	Notification core.Notification `json:"notification"`
	Timestamp    time.Time         `json:"timestamp"`
}

func NewNotificationMessage(userID string, n core.Notification) *NotificationMessage {
	return &NotificationMessage{
		UserID:       userID,
		Notification: n,
		Timestamp:    time.Now(),
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
