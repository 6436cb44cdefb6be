package models

import "time"

// NotificationType grades a user-facing notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is one entry of the capped, dismissible notification list.
type Notification struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      interface{}      `json:"data,omitempty"`
}

// TrainingHistoryEntry records the terminal outcome of one submitted
// update, newest first, capped.
type TrainingHistoryEntry struct {
	Timestamp    int64       `json:"timestamp"`
	Status       string      `json:"status"`
	QualityScore float64     `json:"qualityScore,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Data         interface{} `json:"data,omitempty"`
}

// RoundEvent is the payload of round lifecycle events pushed by the
// coordinator.
type RoundEvent struct {
	RoundNumber          int    `json:"roundNumber"`
	ModelID              string `json:"modelId,omitempty"`
	ParticipatingClients int    `json:"participatingClients,omitempty"`
}

// UpdateDecision is the payload of update accepted/rejected events.
type UpdateDecision struct {
	ModelID      string  `json:"modelId,omitempty"`
	QualityScore float64 `json:"qualityScore,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// ModelEvent is the payload of new-version / model-ready events.
type ModelEvent struct {
	ModelID   string `json:"modelId"`
	Version   int    `json:"version,omitempty"`
	ModelType string `json:"modelType,omitempty"`
}

// ConnectionStatus is emitted on every channel state transition.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// SystemMessage is a free-form server broadcast.
type SystemMessage struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
