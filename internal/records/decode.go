package records

import (
	"fmt"
	"time"

	"github.com/lernlog/ingest/internal/logger"
)

// MissingFieldError reports a required field absent from a payload. It maps
// to a client error without any I/O being attempted.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " required"
}

// DecodeError reports a payload whose structure or discriminator cannot be
// decoded into any known record variant.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return e.Reason
}

// ContentTooLargeError reports a field exceeding its length bound.
type ContentTooLargeError struct {
	Field string
	Limit int
}

func (e *ContentTooLargeError) Error() string {
	return fmt.Sprintf("%s exceeds %d characters", e.Field, e.Limit)
}

// Decode turns an untrusted payload into a typed record variant. Dispatch is
// on the activityAnswerType discriminator for answer records and on kind for
// everything else; an unknown discriminator is a failure, never a default.
// userID is the authenticated caller and now becomes the server timestamp;
// neither is ever read from the payload.
func Decode(userID string, now time.Time, payload map[string]any) (Record, error) {
	if payload == nil {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	base, err := decodeBase(userID, now, payload)
	if err != nil {
		return nil, err
	}

	if t, ok := stringField(payload, "activityAnswerType"); ok {
		return decodeAnswer(t, base, payload)
	}

	kind, ok := stringField(payload, "kind")
	if !ok {
		return nil, &MissingFieldError{Field: "kind"}
	}

	switch Kind(kind) {
	case KindFeedbackView:
		if base.ActivityID == "" {
			return nil, &MissingFieldError{Field: "activity"}
		}
		return &FeedbackView{Meta: base}, nil

	case KindInteraction:
		return decodeInteraction(base, payload)

	case KindSurveyAnswer:
		return decodeSurveyAnswer(base, payload)

	case KindAppInteraction:
		return decodeAppInteraction(base, payload)
	}

	return nil, &DecodeError{Reason: "unknown kind " + kind}
}

// DecodeBatch decodes each element independently, skipping malformed ones
// with a diagnostic log entry. An all-malformed (or empty) input yields an
// empty slice; the caller decides that means nothing to log.
func DecodeBatch(userID string, now time.Time, payloads []map[string]any, log *logger.Logger) []Record {
	out := make([]Record, 0, len(payloads))
	for i, p := range payloads {
		rec, err := Decode(userID, now, p)
		if err != nil {
			log.Warn("skipping undecodable batch element", "index", i, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// DecodePlayContext decodes the mutable play-context record. Absent fields
// take defaults rather than failing: a client may submit a minimal "started"
// context and fill it in on later submissions.
func DecodePlayContext(userID string, now time.Time, payload map[string]any) (*PlayContext, error) {
	if payload == nil {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	ctxID, ok := stringField(payload, "contextId")
	if !ok || ctxID == "" {
		return nil, &MissingFieldError{Field: "contextId"}
	}

	pc := &PlayContext{
		ContextID: ctxID,
		UserID:    userID,
		State:     "started",
		StartedAt: now,
	}

	if v, ok := stringField(payload, "scheduledQuiz"); ok {
		pc.ScheduledQuizID = v
	}
	if v, ok := stringField(payload, "state"); ok {
		pc.State = v
	}
	if v, ok := numberField(payload, "position"); ok {
		pc.Position = int(v)
	}
	if v, ok := numberField(payload, "score"); ok {
		pc.Score = v
	}
	if v, ok := timeField(payload, "startedAt"); ok {
		pc.StartedAt = v
	}
	if v, ok := timeField(payload, "finishedAt"); ok {
		pc.FinishedAt = &v
	}

	return pc, nil
}

func decodeBase(userID string, now time.Time, payload map[string]any) (Base, error) {
	base := Base{
		UserID:     userID,
		ReceivedAt: now.UTC(),
	}

	raw, ok := stringField(payload, "timestamp")
	if !ok {
		return Base{}, &MissingFieldError{Field: "timestamp"}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Base{}, &DecodeError{Reason: "timestamp must be RFC3339"}
	}
	base.OccurredAt = ts.UTC()

	if v, ok := stringField(payload, "activity"); ok {
		base.ActivityID = v
	}
	if v, ok := stringField(payload, "scheduledQuiz"); ok {
		base.ScheduledQuizID = v
	}
	if v, ok := stringField(payload, "playContextId"); ok {
		base.PlayContextID = v
	}

	return base, nil
}

func decodeAnswer(answerType string, base Base, payload map[string]any) (Record, error) {
	if base.ActivityID == "" {
		return nil, &MissingFieldError{Field: "activity"}
	}

	pairs, err := decodeAnswerPairs(payload)
	if err != nil {
		return nil, err
	}
	correct, _ := boolField(payload, "correct")

	switch Kind(answerType) {
	case KindChoiceAnswer:
		return &ChoiceAnswer{Meta: base, Answers: pairs, Correct: correct}, nil
	case KindRecallAnswer:
		return &RecallAnswer{Meta: base, Answers: pairs, Correct: correct}, nil
	case KindBlockAnswer:
		block, _ := stringField(payload, "block")
		return &BlockAnswer{Meta: base, Block: block, Answers: pairs, Correct: correct}, nil
	}

	return nil, &DecodeError{Reason: "unknown activityAnswerType " + answerType}
}

// decodeAnswerPairs accepts the modern list-of-pairs encoding and the legacy
// keyed-map encoding used by older clients. Legacy maps are up-converted
// entry by entry (key → answer, value → evaluation); order is not preserved.
func decodeAnswerPairs(payload map[string]any) ([]AnswerPair, error) {
	raw, present := payload["answers"]
	if !present {
		return nil, &MissingFieldError{Field: "answers"}
	}

	switch v := raw.(type) {
	case []any:
		pairs := make([]AnswerPair, 0, len(v))
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, &DecodeError{Reason: "answers entries must be objects"}
			}
			answer, ok := stringField(m, "answer")
			if !ok {
				return nil, &MissingFieldError{Field: "answers.answer"}
			}
			eval, _ := boolField(m, "evaluation")
			pairs = append(pairs, AnswerPair{Answer: answer, Evaluation: eval})
		}
		return pairs, nil

	case map[string]any:
		pairs := make([]AnswerPair, 0, len(v))
		for answer, e := range v {
			eval, ok := e.(bool)
			if !ok {
				return nil, &DecodeError{Reason: "legacy answers values must be booleans"}
			}
			pairs = append(pairs, AnswerPair{Answer: answer, Evaluation: eval})
		}
		return pairs, nil
	}

	return nil, &DecodeError{Reason: "answers must be a list or a map"}
}

func decodeInteraction(base Base, payload map[string]any) (Record, error) {
	it, ok := stringField(payload, "interactionType")
	if !ok || it == "" {
		return nil, &MissingFieldError{Field: "interactionType"}
	}
	if !InteractionTypes[it] {
		return nil, &DecodeError{Reason: "unknown interactionType " + it}
	}

	content, _ := stringField(payload, "content")
	if len([]rune(content)) > MaxInteractionContent {
		return nil, &ContentTooLargeError{Field: "content", Limit: MaxInteractionContent}
	}

	return &Interaction{Meta: base, InteractionType: it, Content: content}, nil
}

func decodeSurveyAnswer(base Base, payload map[string]any) (Record, error) {
	// The quiz reference is part of the survey idempotency key; without it
	// the key column would be NULL and retries could never be deduplicated.
	if base.ScheduledQuizID == "" {
		return nil, &MissingFieldError{Field: "scheduledQuiz"}
	}

	raw, present := payload["answers"]
	if !present {
		return nil, &MissingFieldError{Field: "answers"}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &DecodeError{Reason: "answers must be a list"}
	}

	pairs := make([]SurveyPair, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, &DecodeError{Reason: "answers entries must be objects"}
		}
		q, ok := stringField(m, "question")
		if !ok {
			return nil, &MissingFieldError{Field: "answers.question"}
		}
		a, ok := stringField(m, "answer")
		if !ok {
			return nil, &MissingFieldError{Field: "answers.answer"}
		}
		pairs = append(pairs, SurveyPair{Question: q, Answer: a})
	}
	if len(pairs) == 0 {
		return nil, &MissingFieldError{Field: "answers"}
	}

	return &SurveyAnswer{Meta: base, Answers: pairs}, nil
}

func decodeAppInteraction(base Base, payload map[string]any) (Record, error) {
	if base.ActivityID == "" {
		return nil, &MissingFieldError{Field: "activity"}
	}
	it, ok := stringField(payload, "interactionType")
	if !ok || it == "" {
		return nil, &MissingFieldError{Field: "interactionType"}
	}
	return &AppInteraction{Meta: base, InteractionType: it}, nil
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func boolField(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func numberField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func timeField(m map[string]any, key string) (time.Time, bool) {
	raw, ok := m[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
