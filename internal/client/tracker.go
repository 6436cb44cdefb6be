package client

import (
	"context"
	"sync"
	"time"

	"github.com/pathlearn/fedclient/internal/core/models"
)

// TrackOptions tunes one tracked interaction. Zero values fall back to
// the tracker's page-level defaults.
type TrackOptions struct {
	Topic      string
	Subtopic   string
	Difficulty models.Difficulty
	TimeSpent  float64
	Completed  bool
	Score      *float64
	Feedback   interface{}
	Metadata   map[string]interface{}
}

// PageTracker captures interactions scoped to one page visit. Begin
// records a page_view; End records a page_exit that carries the visit
// duration and whether anything happened in between.
type PageTracker struct {
	service    *Service
	page       string
	difficulty models.Difficulty

	mu      sync.Mutex
	started time.Time
	count   int
	ended   bool
}

// NewPageTracker records the page_view and starts the visit clock.
func (s *Service) NewPageTracker(ctx context.Context, page string, difficulty models.Difficulty) (*PageTracker, error) {
	if difficulty == "" {
		difficulty = models.DifficultyIntermediate
	}
	t := &PageTracker{
		service:    s,
		page:       page,
		difficulty: difficulty,
		started:    time.Now(),
	}

	err := s.Track(ctx, models.InteractionRecord{
		InteractionType: models.InteractionPageView,
		Topic:           page,
		Difficulty:      difficulty,
		Metadata:        map[string]interface{}{"page": page},
	})
	return t, err
}

// Track records one interaction on the page.
func (t *PageTracker) Track(ctx context.Context, kind models.InteractionType, opts TrackOptions) error {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()

	topic := opts.Topic
	if topic == "" {
		topic = t.page
	}
	difficulty := opts.Difficulty
	if difficulty == "" {
		difficulty = t.difficulty
	}

	metadata := map[string]interface{}{"page": t.page}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	return t.service.Track(ctx, models.InteractionRecord{
		InteractionType: kind,
		Topic:           topic,
		Subtopic:        opts.Subtopic,
		Difficulty:      difficulty,
		TimeSpent:       opts.TimeSpent,
		Completed:       opts.Completed,
		Score:           opts.Score,
		Feedback:        opts.Feedback,
		Metadata:        metadata,
	})
}

// End records the page_exit. The visit counts as completed when at
// least one interaction was tracked. Idempotent.
func (t *PageTracker) End(ctx context.Context) error {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return nil
	}
	t.ended = true
	timeSpent := time.Since(t.started).Seconds()
	count := t.count
	t.mu.Unlock()

	return t.service.Track(ctx, models.InteractionRecord{
		InteractionType: models.InteractionPageExit,
		Topic:           t.page,
		TimeSpent:       timeSpent,
		Completed:       count > 0,
		Metadata: map[string]interface{}{
			"page":         t.page,
			"interactions": count,
		},
	})
}

// TrackChatbotMessage records one chatbot exchange.
func (t *PageTracker) TrackChatbotMessage(ctx context.Context, topic string, messageLength int, responseTime float64) error {
	return t.Track(ctx, models.InteractionChatbot, TrackOptions{
		Topic: topic,
		Metadata: map[string]interface{}{
			"messageLength": messageLength,
			"responseTime":  responseTime,
		},
	})
}

// TrackChatbotFeedback records explicit user feedback on a chatbot answer.
func (t *PageTracker) TrackChatbotFeedback(ctx context.Context, topic string, helpful bool, rating int) error {
	return t.Track(ctx, models.InteractionChatbot, TrackOptions{
		Topic:     topic,
		Completed: true,
		Feedback:  map[string]interface{}{"helpful": helpful, "rating": rating},
	})
}

// TrackRoadmapGeneration records a roadmap being generated for a topic.
func (t *PageTracker) TrackRoadmapGeneration(ctx context.Context, topic string, duration float64, completed bool) error {
	return t.Track(ctx, models.InteractionRoadmap, TrackOptions{
		Topic:     topic,
		Completed: completed,
		Metadata:  map[string]interface{}{"duration": duration},
	})
}

// TrackRoadmapView records time spent viewing a roadmap.
func (t *PageTracker) TrackRoadmapView(ctx context.Context, topic string, timeSpent float64) error {
	return t.Track(ctx, models.InteractionRoadmap, TrackOptions{
		Topic:     topic,
		TimeSpent: timeSpent,
		Completed: true,
	})
}

// TrackChecklistItem records one checklist item being toggled.
func (t *PageTracker) TrackChecklistItem(ctx context.Context, topic string, completed bool, timeSpent float64) error {
	return t.Track(ctx, models.InteractionChecklist, TrackOptions{
		Topic:     topic,
		Completed: completed,
		TimeSpent: timeSpent,
	})
}

// TrackChecklistProgress records overall checklist completion as a score.
func (t *PageTracker) TrackChecklistProgress(ctx context.Context, topic string, completionRate float64) error {
	return t.Track(ctx, models.InteractionChecklist, TrackOptions{
		Topic:     topic,
		Score:     &completionRate,
		Completed: completionRate >= 100,
	})
}

// TrackQuizAttempt records a full quiz attempt with its score.
func (t *PageTracker) TrackQuizAttempt(ctx context.Context, topic string, difficulty models.Difficulty, score, timeSpent float64) error {
	return t.Track(ctx, models.InteractionQuiz, TrackOptions{
		Topic:      topic,
		Difficulty: difficulty,
		Score:      &score,
		TimeSpent:  timeSpent,
		Completed:  true,
	})
}

// TrackQuizQuestion records a single question outcome as a 0/100 score.
func (t *PageTracker) TrackQuizQuestion(ctx context.Context, topic string, difficulty models.Difficulty, correct bool) error {
	score := 0.0
	if correct {
		score = 100
	}
	return t.Track(ctx, models.InteractionQuiz, TrackOptions{
		Topic:      topic,
		Difficulty: difficulty,
		Score:      &score,
		Completed:  true,
		Metadata:   map[string]interface{}{"correct": correct},
	})
}

// TrackVideoWatch records a video viewing session.
func (t *PageTracker) TrackVideoWatch(ctx context.Context, topic string, duration float64, completed bool) error {
	return t.Track(ctx, models.InteractionVideoWatch, TrackOptions{
		Topic:     topic,
		TimeSpent: duration,
		Completed: completed,
	})
}

// TrackResourceClick records a learning resource being opened.
func (t *PageTracker) TrackResourceClick(ctx context.Context, topic, resourceType string) error {
	return t.Track(ctx, models.InteractionResourceClick, TrackOptions{
		Topic:    topic,
		Metadata: map[string]interface{}{"resourceType": resourceType},
	})
}

// TrackArticleRead records an article reading session.
func (t *PageTracker) TrackArticleRead(ctx context.Context, topic string, readingTime float64, completed bool) error {
	return t.Track(ctx, models.InteractionArticleRead, TrackOptions{
		Topic:     topic,
		TimeSpent: readingTime,
		Completed: completed,
	})
}
