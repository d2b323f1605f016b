package expense

import "github.com/google/uuid"

// Command is a request from the frontend to the worker. Commands are
// consumed exactly once, in send order.
type Command interface{ isCommand() }

// RefreshJobs re-scans the input folder and replaces the job list.
type RefreshJobs struct{}

// UpdateSettings applies and persists a new settings snapshot.
type UpdateSettings struct {
	Settings Settings
}

// CommitJobEdits writes the edited fields into a copied template sheet,
// then exports and uploads the PDF.
type CommitJobEdits struct {
	JobID       uuid.UUID
	Fields      ReceiptFields
	TargetMonth string // YYYY-MM
}

// ScanJob downloads the job's image and prefills its fields from a scan.
type ScanJob struct {
	JobID uuid.UUID
}

func (RefreshJobs) isCommand()    {}
func (UpdateSettings) isCommand() {}
func (CommitJobEdits) isCommand() {}
func (ScanJob) isCommand()        {}

// Event is an asynchronous update from the worker to the frontend. The
// frontend never blocks the worker waiting for one; it drains the queue on
// its own schedule.
type Event interface{ isEvent() }

// JobsLoaded carries the full new job list. It replaces, never merges,
// whatever the frontend was showing.
type JobsLoaded struct {
	Jobs []Job
}

// JobStatusChanged reports a single job's lifecycle transition.
type JobStatusChanged struct {
	JobID  uuid.UUID
	Status JobStatus
}

// JobFieldsScanned reports fields prefetched from the receipt image.
type JobFieldsScanned struct {
	JobID  uuid.UUID
	Fields ReceiptFields
}

// LogMessage is informational text for the frontend's log panel.
type LogMessage struct {
	Text string
}

// ErrorMessage is a user-visible failure not tied to a single job's status.
type ErrorMessage struct {
	Text string
}

func (JobsLoaded) isEvent()       {}
func (JobStatusChanged) isEvent() {}
func (JobFieldsScanned) isEvent() {}
func (LogMessage) isEvent()       {}
func (ErrorMessage) isEvent()     {}

const (
	// DefaultCommandBuffer keeps the frontend honest: a full queue blocks
	// the sender, not the worker.
	DefaultCommandBuffer = 8
	// DefaultEventBuffer absorbs bursts of status updates so the worker
	// never waits on a slow frontend.
	DefaultEventBuffer = 128
)

// Mailbox is the channel pair connecting the frontend and the worker.
// Both queues are FIFO. The frontend closes Commands to shut the worker
// down; the worker then stops without emitting further events.
type Mailbox struct {
	Commands chan Command
	Events   chan Event
}

// NewMailbox creates a mailbox with the default buffer sizes.
func NewMailbox() *Mailbox {
	return &Mailbox{
		Commands: make(chan Command, DefaultCommandBuffer),
		Events:   make(chan Event, DefaultEventBuffer),
	}
}

// Send enqueues a command, blocking when the queue is full.
func (m *Mailbox) Send(cmd Command) {
	m.Commands <- cmd
}

// Close signals the worker to terminate after draining pending commands.
func (m *Mailbox) Close() {
	close(m.Commands)
}

// Drain returns all events currently pending without blocking.
func (m *Mailbox) Drain() []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-m.Events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
