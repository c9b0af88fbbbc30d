package records

import "time"

// Kind discriminates the record variants a payload may decode into.
type Kind string

const (
	KindChoiceAnswer   Kind = "choice"
	KindRecallAnswer   Kind = "recall"
	KindBlockAnswer    Kind = "block"
	KindFeedbackView   Kind = "feedbackView"
	KindInteraction    Kind = "interaction"
	KindSurveyAnswer   Kind = "surveyAnswer"
	KindAppInteraction Kind = "appInteraction"
)

// MaxInteractionContent bounds the free-text content of an interaction.
const MaxInteractionContent = 5000

// InteractionTypes is the closed set of accepted interaction types.
var InteractionTypes = map[string]bool{
	"comment":  true,
	"question": true,
	"note":     true,
	"flag":     true,
}

// Base carries the fields shared by every event record. UserID is set by the
// server from the authenticated caller and never taken from the payload.
// ReceivedAt is assigned once at decode time and immutable afterwards.
type Base struct {
	UserID          string    `json:"user"`
	ActivityID      string    `json:"activity,omitempty"`
	ScheduledQuizID string    `json:"scheduledQuiz,omitempty"`
	PlayContextID   string    `json:"playContextId,omitempty"`
	OccurredAt      time.Time `json:"timestamp"`
	ReceivedAt      time.Time `json:"serverTimestamp"`
}

// Record is the closed union of event record variants.
type Record interface {
	Kind() Kind
	Base() *Base
}

// AnswerPair is one submitted answer together with its evaluation.
type AnswerPair struct {
	Answer     string `json:"answer"`
	Evaluation bool   `json:"evaluation"`
}

// SurveyPair is one survey question with the answer the user gave.
type SurveyPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChoiceAnswer records a multiple-choice answer to an activity.
type ChoiceAnswer struct {
	Meta    Base         `json:"meta"`
	Answers []AnswerPair `json:"answers"`
	Correct bool         `json:"correct"`
}

func (r *ChoiceAnswer) Kind() Kind  { return KindChoiceAnswer }
func (r *ChoiceAnswer) Base() *Base { return &r.Meta }

// RecallAnswer records a free-recall answer to an activity.
type RecallAnswer struct {
	Meta    Base         `json:"meta"`
	Answers []AnswerPair `json:"answers"`
	Correct bool         `json:"correct"`
}

func (r *RecallAnswer) Kind() Kind  { return KindRecallAnswer }
func (r *RecallAnswer) Base() *Base { return &r.Meta }

// BlockAnswer records a free-form block answer (e.g. ordered text fragments).
type BlockAnswer struct {
	Meta    Base         `json:"meta"`
	Block   string       `json:"block"`
	Answers []AnswerPair `json:"answers"`
	Correct bool         `json:"correct"`
}

func (r *BlockAnswer) Kind() Kind  { return KindBlockAnswer }
func (r *BlockAnswer) Base() *Base { return &r.Meta }

// FeedbackView records that the user viewed the feedback for an activity.
type FeedbackView struct {
	Meta Base `json:"meta"`
}

func (r *FeedbackView) Kind() Kind  { return KindFeedbackView }
func (r *FeedbackView) Base() *Base { return &r.Meta }

// Interaction records a typed free-text interaction with an activity.
type Interaction struct {
	Meta            Base   `json:"meta"`
	InteractionType string `json:"interactionType"`
	Content         string `json:"content"`
}

func (r *Interaction) Kind() Kind  { return KindInteraction }
func (r *Interaction) Base() *Base { return &r.Meta }

// SurveyAnswer records the answers to a survey attached to a scheduled quiz.
type SurveyAnswer struct {
	Meta    Base         `json:"meta"`
	Answers []SurveyPair `json:"answers"`
}

func (r *SurveyAnswer) Kind() Kind  { return KindSurveyAnswer }
func (r *SurveyAnswer) Base() *Base { return &r.Meta }

// AppInteraction records a coarse app-level interaction. Its idempotency key
// is (user, activity) alone, so resubmissions at any time are duplicates.
type AppInteraction struct {
	Meta            Base   `json:"meta"`
	InteractionType string `json:"interactionType"`
}

func (r *AppInteraction) Kind() Kind  { return KindAppInteraction }
func (r *AppInteraction) Base() *Base { return &r.Meta }

// PlayContext is the one mutable record: repeated submissions under the same
// ContextID replace the stored fields instead of being rejected as duplicates.
type PlayContext struct {
	ContextID       string     `json:"contextId"`
	UserID          string     `json:"user"`
	ScheduledQuizID string     `json:"scheduledQuiz,omitempty"`
	State           string     `json:"state"`
	Position        int        `json:"position"`
	Score           float64    `json:"score"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}
