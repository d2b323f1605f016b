package expense

import (
	"fmt"

	"github.com/google/uuid"
)

// JobState identifies where a job is in the commit lifecycle.
type JobState string

const (
	StateQueued         JobState = "queued"
	StateWaitingUserFix JobState = "waiting_user_fix"
	StateWritingSheet   JobState = "writing_sheet"
	StateExportingPdf   JobState = "exporting_pdf"
	StateUploadingPdf   JobState = "uploading_pdf"
	StateDone           JobState = "done"
	StateError          JobState = "error"
)

// JobStatus pairs a state with the failure message for StateError, so
// "what happened" travels with "what state it's in".
type JobStatus struct {
	State JobState `json:"state"`
	Err   string   `json:"error,omitempty"`
}

// StatusOf wraps a non-error state.
func StatusOf(state JobState) JobStatus {
	return JobStatus{State: state}
}

// StatusError builds the error status carrying a human-readable message.
func StatusError(msg string) JobStatus {
	return JobStatus{State: StateError, Err: msg}
}

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s.State == StateDone || s.State == StateError
}

func (s JobStatus) String() string {
	if s.State == StateError && s.Err != "" {
		return fmt.Sprintf("%s: %s", s.State, s.Err)
	}
	return string(s.State)
}

// canTransition enforces the allowed job state machine edges. The worker
// never moves a job backward or skips a stage; a re-commit restarts a
// finished or failed job at writing_sheet.
func canTransition(from, to JobState) bool {
	if to == StateError {
		return from != StateDone && from != StateError
	}
	switch from {
	case StateQueued:
		return to == StateWaitingUserFix
	case StateWaitingUserFix:
		return to == StateWritingSheet
	case StateWritingSheet:
		return to == StateExportingPdf
	case StateExportingPdf:
		return to == StateUploadingPdf
	case StateUploadingPdf:
		return to == StateDone
	case StateDone, StateError:
		return to == StateWritingSheet
	default:
		return false
	}
}

// ReceiptFields are the user-editable values written into one expense row.
type ReceiptFields struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Reason   string `json:"reason"`
	Amount   int64  `json:"amount"` // yen
	Category string `json:"category"`
	Note     string `json:"note"`
}

// Job is one pending receipt image discovered in the input folder.
type Job struct {
	ID       uuid.UUID     `json:"id"`
	FileID   string        `json:"file_id"` // Drive id of the source image
	Filename string        `json:"filename"`
	Status   JobStatus     `json:"status"`
	Fields   ReceiptFields `json:"fields"`
}

// NewJob creates a job for a discovered source image. The id is stable for
// the job's lifetime; jobs are discarded wholesale on the next refresh.
func NewJob(fileID, filename string) Job {
	return Job{
		ID:       uuid.New(),
		FileID:   fileID,
		Filename: filename,
		Status:   StatusOf(StateQueued),
	}
}
