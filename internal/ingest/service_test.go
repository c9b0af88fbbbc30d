package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernlog/ingest/internal/logger"
	"github.com/lernlog/ingest/internal/records"
)

var knownQuiz = uuid.MustParse("6e8bc430-9c3a-11d9-9669-0800200c9a66")

// fakeStore implements RecordStore and ReferenceStore in memory so service
// behavior can be tested without a database.
type fakeStore struct {
	inserted []records.Record
	contexts map[string]*records.PlayContext

	duplicate    bool
	insertErr    error
	batchDups    []time.Time
	batchErr     error
	upsertErr    error
	lookupErr    error
	lookupCalls  int
	insertsCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{contexts: map[string]*records.PlayContext{}}
}

func (f *fakeStore) InsertRecord(_ context.Context, rec records.Record) (bool, error) {
	f.insertsCalls++
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.duplicate {
		return false, nil
	}
	f.inserted = append(f.inserted, rec)
	return true, nil
}

func (f *fakeStore) InsertBatch(_ context.Context, recs []records.Record) (int, []time.Time, error) {
	if f.batchErr != nil {
		return 0, nil, f.batchErr
	}
	f.inserted = append(f.inserted, recs...)
	return len(recs) - len(f.batchDups), f.batchDups, nil
}

func (f *fakeStore) UpsertPlayContext(_ context.Context, pc *records.PlayContext) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	_, exists := f.contexts[pc.ContextID]
	f.contexts[pc.ContextID] = pc
	return !exists, nil
}

func (f *fakeStore) ScheduledQuizByID(_ context.Context, id uuid.UUID) (string, bool, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	if id == knownQuiz {
		return knownQuiz.String(), true, nil
	}
	return "", false, nil
}

func newTestService(f *fakeStore) *Service {
	svc := NewService(f, f, logger.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func answerPayload() map[string]any {
	return map[string]any{
		"activityAnswerType": "recall",
		"activity":           "act-1",
		"timestamp":          "2024-05-10T11:59:00Z",
		"answers":            []any{map[string]any{"answer": "42", "evaluation": true}},
		"correct":            true,
	}
}

func TestLogRecord_Created(t *testing.T) {
	f := newFakeStore()
	out, rec := newTestService(f).LogRecord(context.Background(), "user-1", answerPayload())

	assert.Equal(t, OutcomeCreated, out)
	require.NotNil(t, rec)
	assert.Equal(t, "user-1", rec.Base().UserID)
	assert.Len(t, f.inserted, 1)
}

func TestLogRecord_DuplicateIsAlreadyExists(t *testing.T) {
	f := newFakeStore()
	f.duplicate = true

	out, rec := newTestService(f).LogRecord(context.Background(), "user-1", answerPayload())

	assert.Equal(t, OutcomeAlreadyExists, out)
	assert.Nil(t, rec, "duplicate must not re-fetch the stored record")
}

func TestLogRecord_KindRestrictionRejectsOtherVariants(t *testing.T) {
	f := newFakeStore()
	out, _ := newTestService(f).LogRecord(context.Background(), "user-1",
		answerPayload(), records.KindFeedbackView)

	assert.Equal(t, OutcomeUndecodablePayload, out)
	assert.Zero(t, f.insertsCalls)
}

func TestLogRecord_StorageError(t *testing.T) {
	f := newFakeStore()
	f.insertErr = errors.New("connection reset")

	out, _ := newTestService(f).LogRecord(context.Background(), "user-1", answerPayload())
	assert.Equal(t, OutcomeStorageError, out)
}

func TestLogRecord_MissingFieldNoPersistenceAttempt(t *testing.T) {
	f := newFakeStore()
	p := answerPayload()
	delete(p, "timestamp")

	out, _ := newTestService(f).LogRecord(context.Background(), "user-1", p)

	assert.Equal(t, OutcomeMissingArguments, out)
	assert.Zero(t, f.insertsCalls)
}

func TestLogRecord_SyntacticallyBadReferenceSkipsLookup(t *testing.T) {
	f := newFakeStore()
	p := answerPayload()
	p["scheduledQuiz"] = "not-a-uuid"

	out, _ := newTestService(f).LogRecord(context.Background(), "user-1", p)

	assert.Equal(t, OutcomeInvalidReference, out)
	assert.Zero(t, f.lookupCalls, "malformed id must be rejected before any round trip")
	assert.Zero(t, f.insertsCalls)
}

func TestLogRecord_UnknownReferenceRejected(t *testing.T) {
	f := newFakeStore()
	p := answerPayload()
	p["scheduledQuiz"] = uuid.NewString()

	out, _ := newTestService(f).LogRecord(context.Background(), "user-1", p)

	assert.Equal(t, OutcomeInvalidReference, out)
	assert.Equal(t, 1, f.lookupCalls)
	assert.Zero(t, f.insertsCalls)
}

func TestLogRecord_ReferenceCanonicalized(t *testing.T) {
	f := newFakeStore()
	p := answerPayload()
	// Same UUID, non-canonical casing: the stored value must be canonical.
	p["scheduledQuiz"] = "6E8BC430-9C3A-11D9-9669-0800200C9A66"

	out, rec := newTestService(f).LogRecord(context.Background(), "user-1", p)

	require.Equal(t, OutcomeCreated, out)
	assert.Equal(t, knownQuiz.String(), rec.Base().ScheduledQuizID)
}

func TestLogRecord_SurveyAnswerWithoutQuizIsMissingField(t *testing.T) {
	f := newFakeStore()
	out, _ := newTestService(f).LogRecord(context.Background(), "user-1", map[string]any{
		"kind":      "surveyAnswer",
		"timestamp": "2024-05-10T11:59:00Z",
		"answers":   []any{map[string]any{"question": "pace", "answer": "fine"}},
	})

	assert.Equal(t, OutcomeMissingArguments, out)
	assert.Zero(t, f.insertsCalls)
}

func TestLogBatch_MixedElements(t *testing.T) {
	f := newFakeStore()
	payloads := []map[string]any{
		answerPayload(),
		{"activityAnswerType": "recall"}, // undecodable, skipped
		answerPayload(),
	}

	out, res := newTestService(f).LogBatch(context.Background(), "user-1", payloads)

	assert.Equal(t, OutcomeCreated, out)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.DuplicateTimestamps)
	assert.Len(t, f.inserted, 2)
}

func TestLogBatch_NothingDecodable(t *testing.T) {
	f := newFakeStore()
	out, _ := newTestService(f).LogBatch(context.Background(), "user-1", []map[string]any{nil, {}})

	assert.Equal(t, OutcomeNothingToLog, out)
	assert.Empty(t, f.inserted)
}

func TestLogBatch_EmptyInput(t *testing.T) {
	f := newFakeStore()
	out, _ := newTestService(f).LogBatch(context.Background(), "user-1", nil)
	assert.Equal(t, OutcomeNothingToLog, out)
}

func TestLogBatch_DuplicatesReported(t *testing.T) {
	f := newFakeStore()
	dup := time.Date(2024, 5, 10, 11, 59, 0, 0, time.UTC)
	f.batchDups = []time.Time{dup}

	out, res := newTestService(f).LogBatch(context.Background(), "user-1",
		[]map[string]any{answerPayload(), answerPayload()})

	assert.Equal(t, OutcomeCreated, out)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []time.Time{dup}, res.DuplicateTimestamps)
}

func TestLogBatch_FatalErrorIsStorageError(t *testing.T) {
	f := newFakeStore()
	f.batchErr = errors.New("deadlock detected")

	out, res := newTestService(f).LogBatch(context.Background(), "user-1",
		[]map[string]any{answerPayload()})

	assert.Equal(t, OutcomeStorageError, out)
	assert.Zero(t, res.Inserted)
}

func TestLogBatch_UnresolvableReferenceSkipped(t *testing.T) {
	f := newFakeStore()
	bad := answerPayload()
	bad["scheduledQuiz"] = uuid.NewString()

	out, res := newTestService(f).LogBatch(context.Background(), "user-1",
		[]map[string]any{bad, answerPayload()})

	assert.Equal(t, OutcomeCreated, out)
	assert.Equal(t, 1, res.Inserted)
}

func TestSavePlayContext_CreateThenUpdate(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	payload := map[string]any{"contextId": "ctx-1", "state": "started"}
	assert.Equal(t, OutcomeCreated, svc.SavePlayContext(context.Background(), "user-1", payload))

	payload["state"] = "completed"
	assert.Equal(t, OutcomeUpdated, svc.SavePlayContext(context.Background(), "user-1", payload))
	assert.Equal(t, "completed", f.contexts["ctx-1"].State)
}

func TestSavePlayContext_IdenticalResubmissionIsUpdated(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	payload := map[string]any{"contextId": "ctx-1"}
	require.Equal(t, OutcomeCreated, svc.SavePlayContext(context.Background(), "user-1", payload))
	assert.Equal(t, OutcomeUpdated, svc.SavePlayContext(context.Background(), "user-1", payload))
}

// The merge key is the context id alone; a submission from a different user
// takes over the context rather than creating a second one.
func TestSavePlayContext_OwnershipFollowsLatestSubmission(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	payload := map[string]any{"contextId": "ctx-1"}
	require.Equal(t, OutcomeCreated, svc.SavePlayContext(context.Background(), "user-1", payload))
	assert.Equal(t, OutcomeUpdated, svc.SavePlayContext(context.Background(), "user-2", payload))
	assert.Equal(t, "user-2", f.contexts["ctx-1"].UserID)
}

func TestSavePlayContext_MissingContextID(t *testing.T) {
	f := newFakeStore()
	out := newTestService(f).SavePlayContext(context.Background(), "user-1", map[string]any{})
	assert.Equal(t, OutcomeMissingArguments, out)
}

func TestSavePlayContext_StorageError(t *testing.T) {
	f := newFakeStore()
	f.upsertErr = errors.New("write timeout")

	out := newTestService(f).SavePlayContext(context.Background(), "user-1",
		map[string]any{"contextId": "ctx-1"})
	assert.Equal(t, OutcomeStorageError, out)
}
