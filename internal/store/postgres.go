package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lernlog/ingest/internal/records"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for event records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction, so the same
// per-record insert serves the single-record and the batch write path.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertRecord persists one record and returns inserted=false when the
// idempotency key already exists. There is no precondition read: the unique
// constraint is the sole arbiter of duplication, so two concurrent identical
// submissions race safely — exactly one inserts, the other sees a conflict.
func (p *PostgresStore) InsertRecord(ctx context.Context, rec records.Record) (bool, error) {
	return insertRecord(ctx, p.pool, rec)
}

// InsertBatch persists records inside one transaction, in input order.
// Duplicates are tolerated per record and reported by their client
// timestamps; any other failure aborts the whole transaction so that no
// record from the call survives.
func (p *PostgresStore) InsertBatch(ctx context.Context, recs []records.Record) (int, []time.Time, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, nil, err
	}
	// Rollback is a no-op after a successful commit.
	defer tx.Rollback(ctx)

	inserted := 0
	var duplicates []time.Time

	for _, rec := range recs {
		ok, err := insertRecord(ctx, tx, rec)
		if err != nil {
			return 0, nil, err
		}
		if ok {
			inserted++
			continue
		}
		duplicates = append(duplicates, rec.Base().OccurredAt)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return inserted, duplicates, nil
}

// UpsertPlayContext atomically creates or replaces the play context stored
// under its context id. created reports whether a new row was inserted;
// xmax = 0 holds only for freshly inserted row versions, so a conflict that
// took the UPDATE arm reports created=false even when the content matched.
//
// The merge key is the context id alone: ownership is not part of it, so a
// submission replaces user_id along with every other field. Context ids are
// opaque client-generated identifiers; a caller that learns another user's
// id can overwrite that context.
func (p *PostgresStore) UpsertPlayContext(ctx context.Context, pc *records.PlayContext) (bool, error) {
	var created bool
	err := p.pool.QueryRow(ctx, `
		INSERT INTO play_contexts(context_id, user_id, scheduled_quiz_id, state, position, score, started_at, finished_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (context_id) DO UPDATE SET
			user_id           = EXCLUDED.user_id,
			scheduled_quiz_id = EXCLUDED.scheduled_quiz_id,
			state             = EXCLUDED.state,
			position          = EXCLUDED.position,
			score             = EXCLUDED.score,
			started_at        = EXCLUDED.started_at,
			finished_at       = EXCLUDED.finished_at,
			updated_at        = now()
		RETURNING (xmax = 0)
	`, pc.ContextID, pc.UserID, nullUUID(pc.ScheduledQuizID), pc.State, pc.Position,
		pc.Score, pc.StartedAt, pc.FinishedAt).Scan(&created)

	if err != nil {
		// The upsert always returns a row; no rows means the write neither
		// inserted nor updated, which is a storage fault like any other.
		return false, err
	}
	return created, nil
}

// ScheduledQuizByID resolves a scheduled-quiz reference to its canonical id.
// found=false is not an error; it means the reference does not exist.
func (p *PostgresStore) ScheduledQuizByID(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var canonical string
	err := p.pool.QueryRow(ctx,
		`SELECT id::text FROM scheduled_quizzes WHERE id = $1`, id,
	).Scan(&canonical)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return canonical, true, nil
}

// insertRecord dispatches one record to its family table. Every statement
// uses ON CONFLICT DO NOTHING RETURNING 1: a duplicate produces no row
// instead of an error, which keeps a surrounding transaction usable.
func insertRecord(ctx context.Context, q querier, rec records.Record) (bool, error) {
	b := rec.Base()
	if b.UserID == "" {
		return false, errors.New("record user required")
	}

	var row pgx.Row

	switch r := rec.(type) {
	case *records.ChoiceAnswer:
		row = insertAnswer(ctx, q, b, string(r.Kind()), "", r.Answers, r.Correct)
	case *records.RecallAnswer:
		row = insertAnswer(ctx, q, b, string(r.Kind()), "", r.Answers, r.Correct)
	case *records.BlockAnswer:
		row = insertAnswer(ctx, q, b, string(r.Kind()), r.Block, r.Answers, r.Correct)

	case *records.FeedbackView:
		row = q.QueryRow(ctx, `
			INSERT INTO feedback_views(id, user_id, activity_id, occurred_at, received_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (user_id, activity_id, occurred_at) DO NOTHING
			RETURNING 1
		`, uuid.New(), b.UserID, b.ActivityID, b.OccurredAt, b.ReceivedAt)

	case *records.Interaction:
		row = q.QueryRow(ctx, `
			INSERT INTO interactions(id, user_id, activity_id, interaction_type, content, occurred_at, received_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (user_id, occurred_at) DO NOTHING
			RETURNING 1
		`, uuid.New(), b.UserID, nullString(b.ActivityID), r.InteractionType, r.Content, b.OccurredAt, b.ReceivedAt)

	case *records.SurveyAnswer:
		answersJSON, err := json.Marshal(r.Answers)
		if err != nil {
			return false, err
		}
		row = q.QueryRow(ctx, `
			INSERT INTO survey_answers(id, user_id, scheduled_quiz_id, answers, occurred_at, received_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (user_id, scheduled_quiz_id, occurred_at) DO NOTHING
			RETURNING 1
		`, uuid.New(), b.UserID, nullUUID(b.ScheduledQuizID), answersJSON, b.OccurredAt, b.ReceivedAt)

	case *records.AppInteraction:
		row = q.QueryRow(ctx, `
			INSERT INTO app_interactions(id, user_id, activity_id, interaction_type, occurred_at, received_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (user_id, activity_id) DO NOTHING
			RETURNING 1
		`, uuid.New(), b.UserID, b.ActivityID, r.InteractionType, b.OccurredAt, b.ReceivedAt)

	default:
		return false, fmt.Errorf("unsupported record kind %q", rec.Kind())
	}

	var one int
	err := row.Scan(&one)
	if err == nil {
		return true, nil
	}

	// Conflict produces "no rows" because RETURNING returns nothing.
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func insertAnswer(ctx context.Context, q querier, b *records.Base, answerType, block string, answers []records.AnswerPair, correct bool) pgx.Row {
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return errRow{err}
	}
	return q.QueryRow(ctx, `
		INSERT INTO answer_records(id, user_id, activity_id, scheduled_quiz_id, play_context_id, answer_type, block, answers, correct, occurred_at, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, activity_id, occurred_at) DO NOTHING
		RETURNING 1
	`, uuid.New(), b.UserID, b.ActivityID, nullUUID(b.ScheduledQuizID), nullString(b.PlayContextID),
		answerType, block, answersJSON, correct, b.OccurredAt, b.ReceivedAt)
}

// errRow lets insertAnswer surface a marshal failure through the row it
// returns, keeping the caller's scan-and-classify flow in one place.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
