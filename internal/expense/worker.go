package expense

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ysaito/expense-filer/internal/scanning"
)

// RemoteFile is the minimal metadata for a file in the backend store.
type RemoteFile struct {
	ID   string
	Name string
}

// RangeUpdate is one cell-range write within a batch.
type RangeUpdate struct {
	Range  string
	Values [][]any
}

// Backend is the document-backend surface the worker consumes. The real
// implementation lives in internal/gdrive; tests substitute a mock.
type Backend interface {
	// ListImages returns the image files in a folder.
	ListImages(ctx context.Context, folderID string) ([]RemoteFile, error)

	// Download fetches a file's bytes and content type.
	Download(ctx context.Context, fileID string) ([]byte, string, error)

	// ResolveSpreadsheet follows a shortcut to the real spreadsheet id.
	// It fails if the target is not a spreadsheet.
	ResolveSpreadsheet(ctx context.Context, fileID string) (string, error)

	// CopySpreadsheet copies a spreadsheet and returns the new file id.
	CopySpreadsheet(ctx context.Context, fileID, name string) (string, error)

	// FirstSheetTitle returns the title of the spreadsheet's first sheet.
	FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error)

	// CountFilledRows counts contiguous non-empty cells in a column from
	// startRow down. This count is the sole source of truth for the next
	// free row; a concurrent writer outside this process can still race it.
	CountFilledRows(ctx context.Context, spreadsheetID, sheetTitle, column string, startRow int64) (int64, error)

	// BatchWrite applies all range updates in one request.
	BatchWrite(ctx context.Context, spreadsheetID string, updates []RangeUpdate) error

	// ExportPDF exports a spreadsheet as PDF bytes.
	ExportPDF(ctx context.Context, fileID string) ([]byte, error)

	// UploadPDF uploads PDF bytes into a folder and returns the file id.
	UploadPDF(ctx context.Context, folderID, filename string, data []byte) (string, error)
}

// Connector performs the one-time identity handshake and yields the
// credential source plus the backend client bound to it.
type Connector interface {
	Connect(ctx context.Context) (oauth2.TokenSource, Backend, error)
}

// Worker is the single long-lived actor owning all backend interaction.
// It consumes commands one at a time and fully processes each, including
// every network call, before pulling the next. That sequencing, not
// locking, is what keeps job state and the copied documents consistent.
type Worker struct {
	connector Connector
	store     SettingsStore
	scanner   scanning.Scanner // nil when scanning is disabled
	archive   Archive          // nil when no local archive is configured
	mailbox   *Mailbox

	settings Settings
	creds    oauth2.TokenSource
	backend  Backend
	jobs     map[string]*Job // keyed by Job.ID.String()
}

// NewWorker creates a worker. scanner and archive may be nil.
func NewWorker(connector Connector, store SettingsStore, settings Settings, scanner scanning.Scanner, archive Archive, mailbox *Mailbox) *Worker {
	return &Worker{
		connector: connector,
		store:     store,
		scanner:   scanner,
		archive:   archive,
		mailbox:   mailbox,
		settings:  settings,
		jobs:      make(map[string]*Job),
	}
}

// Run executes the command loop until the command channel is closed.
// The identity handshake happens once, up front; a failure there is fatal
// for the worker because no backend operation is possible without it.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started")
	// The worker is the only event producer, so it closes the queue on
	// exit and the frontend can drain to completion.
	defer close(w.mailbox.Events)

	creds, backend, err := w.connector.Connect(ctx)
	if err != nil {
		slog.Error("authorization failed", "error", err)
		w.emit(ErrorMessage{Text: fmt.Sprintf("authorization failed: %v", err)})
		return
	}
	w.creds = creds
	w.backend = backend
	slog.Info("authorization ready")

	for cmd := range w.mailbox.Commands {
		switch c := cmd.(type) {
		case RefreshJobs:
			w.handleRefresh(ctx)
		case UpdateSettings:
			w.handleUpdateSettings(c.Settings)
		case CommitJobEdits:
			w.handleCommit(ctx, c)
		case ScanJob:
			w.handleScan(ctx, c)
		default:
			slog.Warn("unknown command", "command", fmt.Sprintf("%T", cmd))
		}
	}
	slog.Info("command queue closed, worker stopping")
}

// emit enqueues an event for the frontend.
func (w *Worker) emit(ev Event) {
	w.mailbox.Events <- ev
}

// setStatus applies a validated transition and reports it.
func (w *Worker) setStatus(job *Job, status JobStatus) {
	if !canTransition(job.Status.State, status.State) {
		slog.Warn("refusing invalid transition",
			"job", job.ID, "from", job.Status.State, "to", status.State)
		return
	}
	job.Status = status
	w.emit(JobStatusChanged{JobID: job.ID, Status: status})
}

// freshToken asks the credential source for a usable bearer token. The
// source caches and refreshes; a failure here is retryable by the user.
func (w *Worker) freshToken() error {
	if _, err := w.creds.Token(); err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}
	return nil
}

// handleRefresh rebuilds the job list from the input folder. The previous
// list is discarded wholesale, never merged.
func (w *Worker) handleRefresh(ctx context.Context) {
	slog.Info("refreshing jobs")
	if w.settings.Drive.InputFolderID == "" {
		slog.Warn("refresh aborted: input folder id missing")
		w.emit(ErrorMessage{Text: "input folder id is not set"})
		return
	}

	if err := w.freshToken(); err != nil {
		slog.Error("token acquisition failed", "error", err)
		w.emit(ErrorMessage{Text: err.Error()})
		return
	}

	files, err := w.backend.ListImages(ctx, w.settings.Drive.InputFolderID)
	if err != nil {
		slog.Error("listing images failed", "error", err)
		w.emit(ErrorMessage{Text: fmt.Sprintf("listing images: %v", err)})
		return
	}
	slog.Info("listed input folder", "files", len(files))

	w.jobs = make(map[string]*Job, len(files))
	jobs := make([]Job, 0, len(files))
	for _, f := range files {
		job := NewJob(f.ID, f.Name)
		// Jobs start editable so the user can fill in the fields.
		job.Status = StatusOf(StateWaitingUserFix)
		w.jobs[job.ID.String()] = &job
		jobs = append(jobs, job)
	}
	w.emit(JobsLoaded{Jobs: jobs})
}

// handleUpdateSettings swaps the snapshot and rewrites the settings file.
func (w *Worker) handleUpdateSettings(settings Settings) {
	w.settings = settings
	if w.store != nil {
		if err := w.store.Save(settings); err != nil {
			slog.Error("persisting settings failed", "error", err)
			w.emit(ErrorMessage{Text: fmt.Sprintf("saving settings: %v", err)})
			return
		}
	}
	slog.Info("settings updated")
	w.emit(LogMessage{Text: "settings updated"})
}

// handleCommit drives one job through the commit pipeline. The first
// status update goes out before any I/O so the frontend shows progress
// without waiting on the network.
func (w *Worker) handleCommit(ctx context.Context, cmd CommitJobEdits) {
	job, ok := w.jobs[cmd.JobID.String()]
	if !ok {
		w.emit(ErrorMessage{Text: fmt.Sprintf("unknown job: %s", cmd.JobID)})
		return
	}
	slog.Info("commit started", "job", job.ID, "month", cmd.TargetMonth)

	job.Fields = cmd.Fields
	w.setStatus(job, StatusOf(StateWritingSheet))

	if err := w.commit(ctx, job, cmd.Fields, cmd.TargetMonth); err != nil {
		slog.Error("commit failed", "job", job.ID, "error", err)
		w.setStatus(job, StatusError(err.Error()))
		return
	}

	slog.Info("commit done", "job", job.ID)
	w.setStatus(job, StatusOf(StateDone))
}

// commit runs the pipeline stages in order. Every stage may fail; the
// first failure stops the pipeline. A document copied by an earlier stage
// is left behind for manual inspection, not rolled back.
func (w *Worker) commit(ctx context.Context, job *Job, fields ReceiptFields, targetMonth string) error {
	cfg := w.settings
	if cfg.Drive.TemplateSheetID == "" || cfg.Drive.OutputFolderID == "" {
		return fmt.Errorf("template sheet id / output folder id is not set")
	}
	if _, err := time.Parse("2006-01", targetMonth); err != nil {
		return fmt.Errorf("target month must be YYYY-MM: %w", err)
	}

	if err := w.freshToken(); err != nil {
		return err
	}

	// Copies in the same month share a traceable, whitespace-free name.
	safeName := strings.Join(strings.Fields(cfg.User.FullName), "")
	copyName := fmt.Sprintf("ExpenseReport_%s_%s", strings.ReplaceAll(targetMonth, "-", ""), safeName)

	templateID, err := w.backend.ResolveSpreadsheet(ctx, cfg.Drive.TemplateSheetID)
	if err != nil {
		return fmt.Errorf("resolving template: %w", err)
	}
	copyID, err := w.backend.CopySpreadsheet(ctx, templateID, copyName)
	if err != nil {
		return fmt.Errorf("copying template: %w", err)
	}
	sheetTitle, err := w.backend.FirstSheetTitle(ctx, copyID)
	if err != nil {
		return fmt.Errorf("reading sheet title: %w", err)
	}

	updates := []RangeUpdate{
		{
			Range:  fmt.Sprintf("%s!%s", sheetTitle, cfg.Template.NameCell),
			Values: [][]any{{cfg.User.FullName}},
		},
		{
			// The template expects the first day of the target month.
			Range:  fmt.Sprintf("%s!%s", sheetTitle, cfg.Template.TargetMonthCell),
			Values: [][]any{{targetMonth + "-01"}},
		},
	}

	filled, err := w.backend.CountFilledRows(ctx, copyID, sheetTitle, cfg.Expense.DateColumn, cfg.Expense.StartRow)
	if err != nil {
		return fmt.Errorf("finding next free row: %w", err)
	}
	row := cfg.Expense.StartRow + filled
	updates = append(updates, RangeUpdate{
		Range: fmt.Sprintf("%s!%s%d:%s%d",
			sheetTitle, cfg.Expense.DateColumn, row, cfg.Expense.NoteColumn, row),
		Values: [][]any{{fields.Date, fields.Reason, fields.Amount, fields.Category, fields.Note}},
	})

	if err := w.backend.BatchWrite(ctx, copyID, updates); err != nil {
		return fmt.Errorf("writing sheet: %w", err)
	}

	w.setStatus(job, StatusOf(StateExportingPdf))
	pdf, err := w.backend.ExportPDF(ctx, copyID)
	if err != nil {
		return fmt.Errorf("exporting pdf: %w", err)
	}

	w.setStatus(job, StatusOf(StateUploadingPdf))
	pdfName := fmt.Sprintf("%s_ExpenseReport_%s.pdf", targetMonth, safeName)
	if _, err := w.backend.UploadPDF(ctx, cfg.Drive.OutputFolderID, pdfName, pdf); err != nil {
		return fmt.Errorf("uploading pdf: %w", err)
	}

	if w.archive != nil {
		if path, err := w.archive.Save(pdfName, pdf); err != nil {
			slog.Warn("archiving pdf failed", "file", pdfName, "error", err)
			w.emit(LogMessage{Text: fmt.Sprintf("archiving %s failed: %v", pdfName, err)})
		} else {
			w.emit(LogMessage{Text: fmt.Sprintf("archived %s", path)})
		}
	}
	return nil
}

// handleScan prefills a job's fields from its receipt image. The job's
// status is untouched; scanning only seeds the editable fields.
func (w *Worker) handleScan(ctx context.Context, cmd ScanJob) {
	job, ok := w.jobs[cmd.JobID.String()]
	if !ok {
		w.emit(ErrorMessage{Text: fmt.Sprintf("unknown job: %s", cmd.JobID)})
		return
	}
	if w.scanner == nil {
		w.emit(ErrorMessage{Text: "no scanner configured"})
		return
	}
	slog.Info("scan started", "job", job.ID, "file", job.Filename)

	if err := w.freshToken(); err != nil {
		w.emit(ErrorMessage{Text: err.Error()})
		return
	}

	data, contentType, err := w.backend.Download(ctx, job.FileID)
	if err != nil {
		slog.Error("downloading image failed", "job", job.ID, "error", err)
		w.emit(ErrorMessage{Text: fmt.Sprintf("downloading image: %v", err)})
		return
	}

	result, err := w.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("scanning failed", "job", job.ID, "error", err)
		w.emit(ErrorMessage{Text: fmt.Sprintf("scanning receipt: %v", err)})
		return
	}

	// Category and note stay whatever the user already entered.
	job.Fields.Date = result.Date
	job.Fields.Reason = result.Merchant
	job.Fields.Amount = result.Amount
	slog.Info("scan done", "job", job.ID, "merchant", result.Merchant, "amount", result.Amount)
	w.emit(JobFieldsScanned{JobID: job.ID, Fields: job.Fields})
}
