package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lernlog/ingest/internal/ingest"
)

// StatusDuplicate reports an idempotent no-op (already logged / updated).
// Clients treat it as success; it is distinct from 200 so retry logic can
// tell a fresh write from a replay.
const StatusDuplicate = 209

// Per the client contract, reference failures, content bounds and empty
// batches use 452, a wrong record kind 454 and an undecodable payload 455.
const (
	statusInvalidReference = 452
	statusBadKind          = 454
	statusUndecodable      = 455
)

// reply is one row of an endpoint's outcome table.
type reply struct {
	Status  int
	Message string
}

// outcomeTable fixes the external contract of one endpoint: the same
// internal outcome always yields the same status and message regardless of
// call site. No business logic lives here.
type outcomeTable map[ingest.Outcome]reply

var answerOutcomes = outcomeTable{
	ingest.OutcomeCreated:            {http.StatusOK, "answer logged"},
	ingest.OutcomeAlreadyExists:      {StatusDuplicate, "answer already logged"},
	ingest.OutcomeMissingArguments:   {http.StatusBadRequest, "required field missing"},
	ingest.OutcomeInvalidReference:   {statusInvalidReference, "scheduled quiz reference invalid"},
	ingest.OutcomeContentTooLarge:    {statusInvalidReference, "content too large"},
	ingest.OutcomeUndecodablePayload: {statusUndecodable, "could not decode answer payload"},
	ingest.OutcomeStorageError:       {http.StatusInternalServerError, "could not log answer"},
}

var batchOutcomes = outcomeTable{
	ingest.OutcomeCreated:      {http.StatusOK, "answers logged"},
	ingest.OutcomeNothingToLog: {statusInvalidReference, "nothing to log"},
	ingest.OutcomeStorageError: {http.StatusInternalServerError, "could not log answers"},
}

var feedbackViewOutcomes = outcomeTable{
	ingest.OutcomeCreated:            {http.StatusOK, "feedback view logged"},
	ingest.OutcomeAlreadyExists:      {StatusDuplicate, "feedback view already logged"},
	ingest.OutcomeMissingArguments:   {http.StatusBadRequest, "required field missing"},
	ingest.OutcomeInvalidReference:   {statusInvalidReference, "scheduled quiz reference invalid"},
	ingest.OutcomeUndecodablePayload: {statusBadKind, "not a feedback view record"},
	ingest.OutcomeStorageError:       {http.StatusInternalServerError, "could not log feedback view"},
}

// Interaction duplicates report plain success: re-submitting the same
// interaction is a no-op the client should not have to special-case.
var interactionOutcomes = outcomeTable{
	ingest.OutcomeCreated:            {http.StatusOK, "interaction logged"},
	ingest.OutcomeAlreadyExists:      {http.StatusOK, "interaction logged"},
	ingest.OutcomeMissingArguments:   {http.StatusBadRequest, "required field missing"},
	ingest.OutcomeContentTooLarge:    {statusInvalidReference, "content too large"},
	ingest.OutcomeInvalidReference:   {statusInvalidReference, "scheduled quiz reference invalid"},
	ingest.OutcomeUndecodablePayload: {statusUndecodable, "could not decode interaction payload"},
	ingest.OutcomeStorageError:       {http.StatusInternalServerError, "could not log interaction"},
}

var surveyAnswerOutcomes = outcomeTable{
	ingest.OutcomeCreated:            {http.StatusOK, "survey answers logged"},
	ingest.OutcomeAlreadyExists:      {StatusDuplicate, "survey answers already logged"},
	ingest.OutcomeMissingArguments:   {http.StatusBadRequest, "required field missing"},
	ingest.OutcomeInvalidReference:   {statusInvalidReference, "scheduled quiz reference invalid"},
	ingest.OutcomeUndecodablePayload: {statusUndecodable, "could not decode survey payload"},
	ingest.OutcomeStorageError:       {http.StatusInternalServerError, "could not log survey answers"},
}

var playContextOutcomes = outcomeTable{
	ingest.OutcomeCreated:            {http.StatusOK, "play context created"},
	ingest.OutcomeUpdated:            {StatusDuplicate, "play context updated"},
	ingest.OutcomeMissingArguments:   {http.StatusBadRequest, "required field missing"},
	ingest.OutcomeInvalidReference:   {statusInvalidReference, "scheduled quiz reference invalid"},
	ingest.OutcomeUndecodablePayload: {statusUndecodable, "could not decode play context payload"},
	ingest.OutcomeStorageError:       {http.StatusInternalServerError, "could not save play context"},
}

// respond writes the fixed status and message for the outcome, merging any
// extra body fields the endpoint wants to include.
func respond(c *gin.Context, table outcomeTable, out ingest.Outcome, extra gin.H) {
	r, ok := table[out]
	if !ok {
		// An outcome missing from the table is a programming error; fail
		// closed as a server error rather than guessing a status.
		r = reply{http.StatusInternalServerError, "internal error"}
	}

	body := gin.H{"message": r.Message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(r.Status, body)
}
