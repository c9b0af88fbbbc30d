package ingest

// Outcome is the internal result of one submitted record. Expected
// conditions — duplicates included — are values, not errors; error returns
// are reserved for faults the service cannot classify.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeAlreadyExists
	OutcomeMissingArguments
	OutcomeUndecodablePayload
	OutcomeInvalidReference
	OutcomeContentTooLarge
	OutcomeNothingToLog
	OutcomeStorageError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeAlreadyExists:
		return "already_exists"
	case OutcomeMissingArguments:
		return "missing_arguments"
	case OutcomeUndecodablePayload:
		return "undecodable_payload"
	case OutcomeInvalidReference:
		return "invalid_reference"
	case OutcomeContentTooLarge:
		return "content_too_large"
	case OutcomeNothingToLog:
		return "nothing_to_log"
	case OutcomeStorageError:
		return "storage_error"
	}
	return "unknown"
}
