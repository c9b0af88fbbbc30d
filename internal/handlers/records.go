package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lernlog/ingest/internal/auth"
	"github.com/lernlog/ingest/internal/ingest"
	"github.com/lernlog/ingest/internal/records"
)

// RegisterRecordRoutes registers the ingestion endpoints.
//
// All routes require an authenticated caller (X-API-Key); the owner of every
// stored record is the verified user from the request context, never a field
// of the payload. Handlers stay thin: decode/validate/persist decisions live
// in the ingest service, status mapping in the outcome tables.
func RegisterRecordRoutes(r gin.IRoutes, svc *ingest.Service) {

	// POST /records/answers — one answer record, at-most-once.
	r.POST("/records/answers", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			respond(c, answerOutcomes, ingest.OutcomeUndecodablePayload, nil)
			return
		}

		out, rec := svc.LogRecord(c.Request.Context(), auth.UserID(c), payload,
			records.KindChoiceAnswer, records.KindRecallAnswer, records.KindBlockAnswer)

		var extra gin.H
		if out == ingest.OutcomeCreated {
			extra = gin.H{"record": rec}
		}
		respond(c, answerOutcomes, out, extra)
	})

	// POST /records/answers/batch — atomic multi-record write; per-record
	// duplicates tolerated, anything else rolls the whole batch back.
	r.POST("/records/answers/batch", func(c *gin.Context) {
		var payloads []map[string]any
		if err := c.ShouldBindJSON(&payloads); err != nil {
			respond(c, batchOutcomes, ingest.OutcomeNothingToLog, nil)
			return
		}

		out, res := svc.LogBatch(c.Request.Context(), auth.UserID(c), payloads)
		if out != ingest.OutcomeCreated {
			respond(c, batchOutcomes, out, nil)
			return
		}

		dups := make([]string, 0, len(res.DuplicateTimestamps))
		for _, ts := range res.DuplicateTimestamps {
			dups = append(dups, ts.Format(time.RFC3339))
		}
		respond(c, batchOutcomes, out, gin.H{
			"insertedCount":       res.Inserted,
			"duplicateTimestamps": dups,
		})
	})

	// POST /records/feedback-views
	r.POST("/records/feedback-views", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			respond(c, feedbackViewOutcomes, ingest.OutcomeUndecodablePayload, nil)
			return
		}

		out, _ := svc.LogRecord(c.Request.Context(), auth.UserID(c), payload,
			records.KindFeedbackView)
		respond(c, feedbackViewOutcomes, out, nil)
	})

	// POST /records/interactions — duplicates answer 200 like a fresh write.
	r.POST("/records/interactions", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			respond(c, interactionOutcomes, ingest.OutcomeUndecodablePayload, nil)
			return
		}

		out, _ := svc.LogRecord(c.Request.Context(), auth.UserID(c), payload,
			records.KindInteraction, records.KindAppInteraction)
		respond(c, interactionOutcomes, out, nil)
	})

	// POST /records/survey-answers
	r.POST("/records/survey-answers", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			respond(c, surveyAnswerOutcomes, ingest.OutcomeUndecodablePayload, nil)
			return
		}

		out, _ := svc.LogRecord(c.Request.Context(), auth.UserID(c), payload,
			records.KindSurveyAnswer)
		respond(c, surveyAnswerOutcomes, out, nil)
	})

	// POST /play-contexts — merge semantics: same contextId updates in place.
	r.POST("/play-contexts", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			respond(c, playContextOutcomes, ingest.OutcomeUndecodablePayload, nil)
			return
		}

		out := svc.SavePlayContext(c.Request.Context(), auth.UserID(c), payload)
		respond(c, playContextOutcomes, out, nil)
	})
}
