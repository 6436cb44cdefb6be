package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/telemetry"
	"github.com/pathlearn/fedclient/pkg/logger"
)

const (
	maxNotifications  = 20
	maxHistoryEntries = 50
)

// StatusSnapshot is the orchestrator's externally visible state, served
// by the status endpoint.
type StatusSnapshot struct {
	Initialized       bool                     `json:"initialized"`
	Connected         bool                     `json:"connected"`
	State             WorkflowState            `json:"state"`
	IsTraining        bool                     `json:"isTraining"`
	SessionID         string                   `json:"sessionId,omitempty"`
	Model             *models.ModelMetadata    `json:"model,omitempty"`
	LastProgress      *models.TrainingProgress `json:"lastProgress,omitempty"`
	BufferedSamples   int                      `json:"bufferedSamples"`
	NotificationCount int                      `json:"notificationCount"`
	HistoryCount      int                      `json:"historyCount"`
}

// Service coordinates the federated client, the realtime channel, and
// the local interaction session. It owns the notification list and
// training history and keeps them bounded.
type Service struct {
	federated *FederatedClient
	channel   *RealtimeChannel
	log       zerolog.Logger

	mu            sync.Mutex
	started       bool
	initialized   bool
	sessionID     string
	notifications []models.Notification
	history       []models.TrainingHistoryEntry
	lastProgress  *models.TrainingProgress
	subs          []Subscription
}

func NewService(federated *FederatedClient, channel *RealtimeChannel) *Service {
	return &Service{
		federated: federated,
		channel:   channel,
		log:       logger.WithComponent("service"),
	}
}

// Start restores persisted state, begins an interaction session, wires
// the channel event handlers, and connects. Connection failures do not
// fail Start; the channel retries in the background.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.sessionID = newSessionID()
	s.mu.Unlock()

	if err := s.federated.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize federated client: %w", err)
	}

	s.subscribe()
	s.channel.Connect()

	s.mu.Lock()
	s.initialized = true
	sessionID := s.sessionID
	s.mu.Unlock()

	s.log.Info().Str("session_id", sessionID).Msg("Service started")
	return nil
}

// Stop unsubscribes every handler, disconnects the channel, and ends
// the interaction session. Idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.initialized = false
	subs := s.subs
	s.subs = nil
	sessionID := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()

	for _, sub := range subs {
		s.channel.Off(sub)
	}
	s.channel.Disconnect()

	s.log.Info().Str("session_id", sessionID).Msg("Service stopped")
	return nil
}

// Track appends an interaction to the current session.
func (s *Service) Track(ctx context.Context, record models.InteractionRecord) error {
	s.mu.Lock()
	record.SessionID = s.sessionID
	s.mu.Unlock()
	return s.federated.AddInteraction(ctx, record)
}

// Train runs one participate-in-training workflow and converts the
// result into a notification. The structured result passes through
// unchanged.
func (s *Service) Train(ctx context.Context, opts ParticipateOptions) models.TrainingResult {
	metadata := s.federated.ModelManager().Metadata()
	modelID := ""
	if metadata != nil {
		modelID = metadata.ModelID
	}

	prev := opts.Train.OnProgress
	opts.Train.OnProgress = func(progress models.TrainingProgress) {
		s.mu.Lock()
		p := progress
		s.lastProgress = &p
		s.mu.Unlock()

		s.channel.SendTrainingProgress(modelID, float64(progress.Epoch)/float64(progress.TotalEpochs), "training")
		if prev != nil {
			prev(progress)
		}
	}

	result := s.federated.ParticipateInTraining(ctx, opts)
	if result.Success {
		s.notify(models.NotificationSuccess, "Training complete",
			fmt.Sprintf("Local training finished on %d samples", result.TrainingMetrics.SamplesUsed), nil)
	} else {
		s.notify(models.NotificationError, "Training failed", result.Error, nil)
	}
	return result
}

// Notifications returns the current list, newest first.
func (s *Service) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

// DismissNotification removes one notification by id.
func (s *Service) DismissNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearNotifications removes every notification.
func (s *Service) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
}

// TrainingHistory returns terminal update outcomes, newest first.
func (s *Service) TrainingHistory() []models.TrainingHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TrainingHistoryEntry(nil), s.history...)
}

// Status captures the orchestrator's current state.
func (s *Service) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		Initialized:       s.initialized,
		Connected:         s.channel.IsConnected(),
		State:             s.federated.State(),
		IsTraining:        s.federated.ModelManager().IsTraining(),
		SessionID:         s.sessionID,
		Model:             s.federated.ModelManager().Metadata(),
		LastProgress:      s.lastProgress,
		BufferedSamples:   s.federated.Buffer().Size(),
		NotificationCount: len(s.notifications),
		HistoryCount:      len(s.history),
	}
}

// Federated exposes the underlying client for direct operations.
func (s *Service) Federated() *FederatedClient {
	return s.federated
}

// Channel exposes the realtime channel.
func (s *Service) Channel() *RealtimeChannel {
	return s.channel
}

// SessionID returns the current interaction session id.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Service) subscribe() {
	subs := []Subscription{
		s.channel.On(EventConnectionStatus, s.onConnectionStatus),
		s.channel.On(EventConnectionError, func(event Event) {
			s.notify(models.NotificationError, "Connection error", decodeReason(event.Payload), nil)
		}),
		s.channel.On(EventTrainingRoundStarted, s.onRoundStarted),
		s.channel.On(EventTrainingRoundCompleted, s.onRoundCompleted),
		s.channel.On(EventUpdateAccepted, s.onUpdateAccepted),
		s.channel.On(EventUpdateRejected, s.onUpdateRejected),
		s.channel.On(EventNewModelVersion, s.onModelAvailable),
		s.channel.On(EventModelReady, s.onModelAvailable),
		s.channel.On(EventNotification, s.onServerNotification),
		s.channel.On(EventSystemMessage, s.onSystemMessage),
		s.channel.On(EventSocketError, func(event Event) {
			s.log.Warn().RawJSON("payload", nonEmpty(event.Payload)).Msg("Socket error reported by server")
		}),
	}

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

func (s *Service) onConnectionStatus(event Event) {
	var status models.ConnectionStatus
	if err := json.Unmarshal(event.Payload, &status); err != nil {
		return
	}
	if status.Connected {
		s.log.Info().Msg("Realtime channel connected")
		return
	}
	s.log.Warn().Str("reason", status.Reason).Msg("Realtime channel disconnected")
}

func (s *Service) onRoundStarted(event Event) {
	var round models.RoundEvent
	if err := json.Unmarshal(event.Payload, &round); err != nil {
		s.log.Debug().Err(err).Msg("Malformed round_started payload")
		return
	}
	s.notify(models.NotificationInfo, "Training round started",
		fmt.Sprintf("Round %d has begun", round.RoundNumber), round)
}

func (s *Service) onRoundCompleted(event Event) {
	var round models.RoundEvent
	if err := json.Unmarshal(event.Payload, &round); err != nil {
		s.log.Debug().Err(err).Msg("Malformed round_completed payload")
		return
	}
	s.notify(models.NotificationSuccess, "Training round completed",
		fmt.Sprintf("Round %d finished with %d participants", round.RoundNumber, round.ParticipatingClients), round)
}

func (s *Service) onUpdateAccepted(event Event) {
	var decision models.UpdateDecision
	if err := json.Unmarshal(event.Payload, &decision); err != nil {
		s.log.Debug().Err(err).Msg("Malformed update_accepted payload")
		return
	}
	s.appendHistory(models.TrainingHistoryEntry{
		Timestamp:    time.Now().UnixMilli(),
		Status:       "accepted",
		QualityScore: decision.QualityScore,
		Data:         decision,
	})
	s.notify(models.NotificationSuccess, "Update accepted",
		fmt.Sprintf("Quality score %.2f", decision.QualityScore), decision)
}

func (s *Service) onUpdateRejected(event Event) {
	var decision models.UpdateDecision
	if err := json.Unmarshal(event.Payload, &decision); err != nil {
		s.log.Debug().Err(err).Msg("Malformed update_rejected payload")
		return
	}
	s.appendHistory(models.TrainingHistoryEntry{
		Timestamp: time.Now().UnixMilli(),
		Status:    "rejected",
		Reason:    decision.Reason,
		Data:      decision,
	})
	s.notify(models.NotificationWarning, "Update rejected", decision.Reason, decision)
}

// onModelAvailable downloads the announced model in the background so
// the read loop is never blocked on HTTP.
func (s *Service) onModelAvailable(event Event) {
	var model models.ModelEvent
	if err := json.Unmarshal(event.Payload, &model); err != nil {
		s.log.Debug().Err(err).Msg("Malformed model event payload")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.federated.DownloadLatestModel(ctx); err != nil {
			s.log.Error().Err(err).Str("model_id", model.ModelID).Msg("Failed to download announced model")
			s.notify(models.NotificationError, "Model download failed", err.Error(), model)
			return
		}
		s.notify(models.NotificationInfo, "Model updated",
			fmt.Sprintf("New model version available (%s)", model.ModelID), model)
	}()
}

func (s *Service) onServerNotification(event Event) {
	var n struct {
		Type    models.NotificationType `json:"type"`
		Title   string                  `json:"title"`
		Message string                  `json:"message"`
	}
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		s.log.Debug().Err(err).Msg("Malformed notification payload")
		return
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	s.notify(n.Type, n.Title, n.Message, nil)
}

func (s *Service) onSystemMessage(event Event) {
	var msg models.SystemMessage
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return
	}
	s.log.Info().Str("message", msg.Message).Msg("System message received")
}

// notify prepends a notification and trims the list to its cap.
func (s *Service) notify(kind models.NotificationType, title, message string, data interface{}) {
	notification := models.Notification{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
	}

	s.mu.Lock()
	s.notifications = append([]models.Notification{notification}, s.notifications...)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[:maxNotifications]
	}
	s.mu.Unlock()

	telemetry.RecordNotification(string(kind))
}

func (s *Service) appendHistory(entry models.TrainingHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]models.TrainingHistoryEntry{entry}, s.history...)
	if len(s.history) > maxHistoryEntries {
		s.history = s.history[:maxHistoryEntries]
	}
}

func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), randomSuffix(9))
}

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

func decodeReason(payload json.RawMessage) string {
	var body struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Reason != "" {
			return body.Reason
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return "realtime connection failed"
}

func nonEmpty(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return payload
}
