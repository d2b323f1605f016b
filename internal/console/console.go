// Package console is the interactive frontend driver. It owns its local
// copy of the job list, sends commands over the mailbox, and drains events
// on its own schedule; it never shares mutable state with the worker.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ysaito/expense-filer/internal/expense"
)

// Frontend reads line commands and renders worker events.
type Frontend struct {
	mailbox *expense.Mailbox
	in      io.Reader
	out     io.Writer

	mu          sync.Mutex
	jobs        []expense.Job
	settings    expense.Settings
	targetMonth string
	stopped     bool // worker terminated (events channel closed)
}

// New creates a frontend over the given mailbox.
func New(mailbox *expense.Mailbox, settings expense.Settings, in io.Reader, out io.Writer) *Frontend {
	return &Frontend{
		mailbox:  mailbox,
		in:       in,
		out:      out,
		settings: settings,
	}
}

// Run consumes events in the background and processes input lines until
// EOF or quit, then closes the command queue to stop the worker.
func (f *Frontend) Run(ctx context.Context) error {
	go f.consumeEvents()

	fmt.Fprintln(f.out, `expense-filer ready; type "help" for commands`)
	scanner := bufio.NewScanner(f.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := f.dispatch(line); err != nil {
			fmt.Fprintf(f.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	f.mailbox.Close()
	return scanner.Err()
}

// consumeEvents applies events to the local job copy and prints them.
func (f *Frontend) consumeEvents() {
	for ev := range f.mailbox.Events {
		f.apply(ev)
	}
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	fmt.Fprintln(f.out, "worker stopped")
}

func (f *Frontend) apply(ev expense.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch e := ev.(type) {
	case expense.JobsLoaded:
		// Full replacement; stale jobs from the previous refresh vanish.
		f.jobs = e.Jobs
		fmt.Fprintf(f.out, "loaded %d job(s)\n", len(e.Jobs))
	case expense.JobStatusChanged:
		for i := range f.jobs {
			if f.jobs[i].ID == e.JobID {
				f.jobs[i].Status = e.Status
				fmt.Fprintf(f.out, "job %d: %s\n", i+1, e.Status)
				return
			}
		}
	case expense.JobFieldsScanned:
		for i := range f.jobs {
			if f.jobs[i].ID == e.JobID {
				f.jobs[i].Fields = e.Fields
				fmt.Fprintf(f.out, "job %d scanned: %s %s ¥%d\n",
					i+1, e.Fields.Date, e.Fields.Reason, e.Fields.Amount)
				return
			}
		}
	case expense.LogMessage:
		fmt.Fprintf(f.out, "log: %s\n", e.Text)
	case expense.ErrorMessage:
		fmt.Fprintf(f.out, "error: %s\n", e.Text)
	}
}

func (f *Frontend) dispatch(line string) error {
	args := strings.Fields(line)
	cmd, args := args[0], args[1:]

	f.mu.Lock()
	if f.stopped && cmd != "jobs" && cmd != "settings" && cmd != "help" {
		f.mu.Unlock()
		return fmt.Errorf("worker stopped; restart the program")
	}
	f.mu.Unlock()

	switch cmd {
	case "help":
		f.printHelp()
		return nil
	case "refresh":
		f.mailbox.Send(expense.RefreshJobs{})
		return nil
	case "jobs":
		f.printJobs()
		return nil
	case "settings":
		f.printSettings()
		return nil
	case "month":
		if len(args) != 1 {
			return fmt.Errorf("usage: month YYYY-MM")
		}
		f.mu.Lock()
		f.targetMonth = args[0]
		f.mu.Unlock()
		return nil
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: set <key> <value>")
		}
		return f.updateSetting(args[0], strings.Join(args[1:], " "))
	case "edit":
		if len(args) < 2 {
			return fmt.Errorf("usage: edit <job#> field=value...")
		}
		return f.editJob(args[0], args[1:])
	case "scan":
		if len(args) != 1 {
			return fmt.Errorf("usage: scan <job#>")
		}
		job, err := f.jobAt(args[0])
		if err != nil {
			return err
		}
		f.mailbox.Send(expense.ScanJob{JobID: job.ID})
		return nil
	case "commit":
		if len(args) != 1 {
			return fmt.Errorf("usage: commit <job#>")
		}
		return f.commitJob(args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (f *Frontend) printHelp() {
	fmt.Fprint(f.out, `commands:
  refresh              rescan the input folder
  jobs                 list jobs
  scan <job#>          prefill a job's fields from its image
  edit <job#> k=v...   edit fields (date, reason, amount, category, note)
  month YYYY-MM        set the target month for commits
  commit <job#>        write the sheet, export and upload the PDF
  set <key> <value>    update a setting (see "settings" for keys)
  settings             show current settings
  quit                 exit
`)
}

func (f *Frontend) printJobs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		fmt.Fprintln(f.out, "no jobs; run refresh")
		return
	}
	for i, j := range f.jobs {
		fmt.Fprintf(f.out, "%2d  %-30s  %-20s  %s %s ¥%d %s %s\n",
			i+1, j.Filename, j.Status,
			j.Fields.Date, j.Fields.Reason, j.Fields.Amount, j.Fields.Category, j.Fields.Note)
	}
}

func (f *Frontend) printSettings() {
	f.mu.Lock()
	s := f.settings
	f.mu.Unlock()
	fmt.Fprintf(f.out, "input_folder_id    %s\n", s.Drive.InputFolderID)
	fmt.Fprintf(f.out, "output_folder_id   %s\n", s.Drive.OutputFolderID)
	fmt.Fprintf(f.out, "template_sheet_id  %s\n", s.Drive.TemplateSheetID)
	fmt.Fprintf(f.out, "full_name          %s\n", s.User.FullName)
	fmt.Fprintf(f.out, "name_cell          %s\n", s.Template.NameCell)
	fmt.Fprintf(f.out, "target_month_cell  %s\n", s.Template.TargetMonthCell)
	fmt.Fprintf(f.out, "start_row          %d\n", s.Expense.StartRow)
}

func (f *Frontend) updateSetting(key, value string) error {
	f.mu.Lock()
	s := f.settings
	f.mu.Unlock()

	if err := applySetting(&s, key, value); err != nil {
		return err
	}

	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	f.mailbox.Send(expense.UpdateSettings{Settings: s})
	return nil
}

func (f *Frontend) editJob(index string, assignments []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, err := jobIndex(index, len(f.jobs))
	if err != nil {
		return err
	}
	fields := f.jobs[i].Fields
	if err := applyAssignments(&fields, assignments); err != nil {
		return err
	}
	// Edits stay local until commit; the worker owns status, the
	// frontend owns in-progress field edits.
	f.jobs[i].Fields = fields
	return nil
}

func (f *Frontend) commitJob(index string) error {
	f.mu.Lock()
	month := f.targetMonth
	job, err := f.jobAtLocked(index)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if month == "" {
		return fmt.Errorf("set a target month first (month YYYY-MM)")
	}
	f.mailbox.Send(expense.CommitJobEdits{
		JobID:       job.ID,
		Fields:      job.Fields,
		TargetMonth: month,
	})
	return nil
}

func (f *Frontend) jobAt(index string) (expense.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobAtLocked(index)
}

func (f *Frontend) jobAtLocked(index string) (expense.Job, error) {
	i, err := jobIndex(index, len(f.jobs))
	if err != nil {
		return expense.Job{}, err
	}
	return f.jobs[i], nil
}

// jobIndex converts a 1-based display index into a slice index.
func jobIndex(s string, count int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("no such job %q (have %d)", s, count)
	}
	return n - 1, nil
}

// applyAssignments applies field=value pairs to receipt fields.
func applyAssignments(fields *expense.ReceiptFields, assignments []string) error {
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", a)
		}
		switch key {
		case "date":
			fields.Date = value
		case "reason":
			fields.Reason = value
		case "amount":
			amount, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be an integer: %q", value)
			}
			fields.Amount = amount
		case "category":
			fields.Category = value
		case "note":
			fields.Note = value
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}

// applySetting writes one settings key. Keys mirror the settings file.
func applySetting(s *expense.Settings, key, value string) error {
	switch key {
	case "input_folder_id":
		s.Drive.InputFolderID = value
	case "output_folder_id":
		s.Drive.OutputFolderID = value
	case "template_sheet_id":
		s.Drive.TemplateSheetID = value
	case "full_name":
		s.User.FullName = value
	case "name_cell":
		s.Template.NameCell = value
	case "target_month_cell":
		s.Template.TargetMonthCell = value
	case "start_row":
		row, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("start_row must be an integer: %q", value)
		}
		s.Expense.StartRow = row
	case "date_column":
		s.Expense.DateColumn = value
	case "reason_column":
		s.Expense.ReasonColumn = value
	case "amount_column":
		s.Expense.AmountColumn = value
	case "category_column":
		s.Expense.CategoryColumn = value
	case "note_column":
		s.Expense.NoteColumn = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
