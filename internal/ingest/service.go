package ingest

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lernlog/ingest/internal/logger"
	"github.com/lernlog/ingest/internal/records"
)

// RecordStore is the slice of the persistence layer the writers need.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec records.Record) (inserted bool, err error)
	InsertBatch(ctx context.Context, recs []records.Record) (inserted int, duplicates []time.Time, err error)
	UpsertPlayContext(ctx context.Context, pc *records.PlayContext) (created bool, err error)
}

// ReferenceStore is the external lookup collaborator used to resolve
// scheduled-quiz references.
type ReferenceStore interface {
	ScheduledQuizByID(ctx context.Context, id uuid.UUID) (canonical string, found bool, err error)
}

// BatchResult reports a committed batch write.
type BatchResult struct {
	Inserted            int
	DuplicateTimestamps []time.Time
}

// Service orchestrates decode → reference resolution → persistence. It holds
// no mutable state; all coordination is delegated to the store's atomicity
// primitives, so concurrent requests need no in-process locking.
type Service struct {
	store RecordStore
	refs  ReferenceStore
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store RecordStore, refs ReferenceStore, log *logger.Logger) *Service {
	return &Service{
		store: store,
		refs:  refs,
		log:   log.With("component", "ingest"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// LogRecord decodes and persists one record with at-most-once semantics.
// On OutcomeCreated the decoded record is returned for echoing to the
// client; every other outcome returns a nil record. When allowed kinds are
// given, a record of any other kind is rejected as undecodable: each
// endpoint accepts only its own variants.
func (s *Service) LogRecord(ctx context.Context, userID string, payload map[string]any, allowed ...records.Kind) (Outcome, records.Record) {
	rec, err := records.Decode(userID, s.now(), payload)
	if err != nil {
		return classifyDecodeErr(err), nil
	}

	if len(allowed) > 0 && !slices.Contains(allowed, rec.Kind()) {
		return OutcomeUndecodablePayload, nil
	}

	if out := s.resolveQuizRef(ctx, rec.Base()); out != OutcomeCreated {
		return out, nil
	}

	inserted, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		s.log.Error("record insert failed", "kind", rec.Kind(), "user", userID, "error", err)
		return OutcomeStorageError, nil
	}
	if !inserted {
		return OutcomeAlreadyExists, nil
	}
	return OutcomeCreated, rec
}

// LogBatch decodes each element, dropping malformed or unresolvable ones,
// then persists the rest in one transaction. Duplicates inside the batch are
// tolerated per record; any other storage failure leaves nothing persisted.
func (s *Service) LogBatch(ctx context.Context, userID string, payloads []map[string]any) (Outcome, BatchResult) {
	decoded := records.DecodeBatch(userID, s.now(), payloads, s.log)

	keep := decoded[:0]
	for _, rec := range decoded {
		switch out := s.resolveQuizRef(ctx, rec.Base()); out {
		case OutcomeCreated:
			keep = append(keep, rec)
		case OutcomeStorageError:
			return OutcomeStorageError, BatchResult{}
		default:
			s.log.Warn("skipping batch element with unresolvable reference",
				"kind", rec.Kind(), "scheduledQuiz", rec.Base().ScheduledQuizID)
		}
	}

	if len(keep) == 0 {
		return OutcomeNothingToLog, BatchResult{}
	}

	inserted, duplicates, err := s.store.InsertBatch(ctx, keep)
	if err != nil {
		s.log.Error("batch insert failed", "size", len(keep), "user", userID, "error", err)
		return OutcomeStorageError, BatchResult{}
	}

	return OutcomeCreated, BatchResult{Inserted: inserted, DuplicateTimestamps: duplicates}
}

// SavePlayContext upserts the mutable play-context record: first submission
// of a context id creates it, later submissions replace its fields.
func (s *Service) SavePlayContext(ctx context.Context, userID string, payload map[string]any) Outcome {
	pc, err := records.DecodePlayContext(userID, s.now(), payload)
	if err != nil {
		return classifyDecodeErr(err)
	}

	if pc.ScheduledQuizID != "" {
		canonical, out := s.resolveQuizID(ctx, pc.ScheduledQuizID)
		if out != OutcomeCreated {
			return out
		}
		pc.ScheduledQuizID = canonical
	}

	created, err := s.store.UpsertPlayContext(ctx, pc)
	if err != nil {
		s.log.Error("play context upsert failed", "contextId", pc.ContextID, "user", userID, "error", err)
		return OutcomeStorageError
	}
	if created {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

// resolveQuizRef validates and canonicalizes a record's scheduled-quiz
// linkage in place. Records without a linkage pass through untouched.
func (s *Service) resolveQuizRef(ctx context.Context, b *records.Base) Outcome {
	if b.ScheduledQuizID == "" {
		return OutcomeCreated
	}
	canonical, out := s.resolveQuizID(ctx, b.ScheduledQuizID)
	if out != OutcomeCreated {
		return out
	}
	b.ScheduledQuizID = canonical
	return OutcomeCreated
}

// resolveQuizID checks syntax before spending a round trip, then looks the
// reference up. The canonical stored id replaces the client-supplied value.
func (s *Service) resolveQuizID(ctx context.Context, ref string) (string, Outcome) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", OutcomeInvalidReference
	}

	canonical, found, err := s.refs.ScheduledQuizByID(ctx, id)
	if err != nil {
		s.log.Error("scheduled quiz lookup failed", "scheduledQuiz", ref, "error", err)
		return "", OutcomeStorageError
	}
	if !found {
		return "", OutcomeInvalidReference
	}
	return canonical, OutcomeCreated
}

func classifyDecodeErr(err error) Outcome {
	var mf *records.MissingFieldError
	if errors.As(err, &mf) {
		return OutcomeMissingArguments
	}
	var tl *records.ContentTooLargeError
	if errors.As(err, &tl) {
		return OutcomeContentTooLarge
	}
	return OutcomeUndecodablePayload
}
