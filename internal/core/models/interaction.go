package models

// InteractionType classifies a captured user-behavior event.
type InteractionType string

const (
	InteractionChatbot            InteractionType = "chatbot"
	InteractionRoadmap            InteractionType = "roadmap"
	InteractionChecklist          InteractionType = "checklist"
	InteractionVideoWatch         InteractionType = "video_watch"
	InteractionResourceClick      InteractionType = "resource_click"
	InteractionArticleRead        InteractionType = "article_read"
	InteractionQuiz               InteractionType = "quiz"
	InteractionPageView           InteractionType = "page_view"
	InteractionPageExit           InteractionType = "page_exit"
	InteractionCourseView         InteractionType = "course_view"
	InteractionCourseEnroll       InteractionType = "course_enroll"
	InteractionRecommendationView InteractionType = "recommendation_view"
)

// Difficulty grades the content an interaction refers to.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// InteractionRecord is one captured user interaction used as training
// signal. Records are immutable after capture; Timestamp is assigned when
// the record enters the buffer.
type InteractionRecord struct {
	InteractionType InteractionType        `json:"interactionType"`
	Topic           string                 `json:"topic"`
	Subtopic        string                 `json:"subtopic,omitempty"`
	Difficulty      Difficulty             `json:"difficulty,omitempty"`
	TimeSpent       float64                `json:"timeSpent,omitempty"`
	Completed       bool                   `json:"completed,omitempty"`
	Score           *float64               `json:"score,omitempty"`
	Feedback        interface{}            `json:"feedback,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Timestamp       int64                  `json:"timestamp"`
	SessionID       string                 `json:"sessionId,omitempty"`
}
