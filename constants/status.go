package constants

// DocumentStatus is the canonical processing status for a document.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocStatusPending    DocumentStatus = "PENDING"    // queued for extraction
	DocStatusCached     DocumentStatus = "CACHED"     // resolved from the extraction cache
	DocStatusExtracted  DocumentStatus = "EXTRACTED"  // provider call succeeded, not yet validated
	DocStatusValidating DocumentStatus = "VALIDATING" // validation in progress
	DocStatusAccepted   DocumentStatus = "ACCEPTED"   // validated and persisted
	DocStatusReview     DocumentStatus = "REVIEW"     // queued for human adjudication
	DocStatusFailed     DocumentStatus = "FAILED"     // terminal failure, eligible for manual re-trigger
)

// AttemptOutcome classifies one provider call.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "SUCCESS"
	OutcomeTransientFailure AttemptOutcome = "TRANSIENT_FAILURE"
	OutcomePermanentFailure AttemptOutcome = "PERMANENT_FAILURE"
	OutcomeTimeout          AttemptOutcome = "TIMEOUT"
	OutcomeCancelled        AttemptOutcome = "CANCELLED"
)

// Verdict is the tri-state outcome of the validation gate.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictReview Verdict = "REVIEW"
	VerdictReject Verdict = "REJECT"
)
