package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ysaito/expense-filer/internal/expense"
)

func TestConsole(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Console Suite")
}

var _ = Describe("jobIndex", func() {
	It("converts a 1-based index", func() {
		i, err := jobIndex("1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(i).To(Equal(0))

		i, err = jobIndex("3", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(i).To(Equal(2))
	})

	It("rejects out-of-range and non-numeric indices", func() {
		for _, s := range []string{"0", "4", "-1", "abc", ""} {
			_, err := jobIndex(s, 3)
			Expect(err).To(HaveOccurred(), "index %q", s)
		}
	})
})

var _ = Describe("applyAssignments", func() {
	It("applies every field", func() {
		var fields expense.ReceiptFields
		err := applyAssignments(&fields, []string{
			"date=2025-12-19", "reason=Lawson", "amount=1280", "category=meals", "note=client",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(Equal(expense.ReceiptFields{
			Date:     "2025-12-19",
			Reason:   "Lawson",
			Amount:   1280,
			Category: "meals",
			Note:     "client",
		}))
	})

	It("leaves untouched fields alone", func() {
		fields := expense.ReceiptFields{Reason: "Lawson", Amount: 1280}
		Expect(applyAssignments(&fields, []string{"date=2025-12-19"})).To(Succeed())
		Expect(fields.Reason).To(Equal("Lawson"))
		Expect(fields.Amount).To(Equal(int64(1280)))
	})

	It("rejects a non-integer amount", func() {
		var fields expense.ReceiptFields
		err := applyAssignments(&fields, []string{"amount=12.80"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("amount must be an integer"))
	})

	It("rejects unknown fields and malformed pairs", func() {
		var fields expense.ReceiptFields
		Expect(applyAssignments(&fields, []string{"merchant=Lawson"})).NotTo(Succeed())
		Expect(applyAssignments(&fields, []string{"date"})).NotTo(Succeed())
	})
})

var _ = Describe("applySetting", func() {
	It("writes string settings", func() {
		s := expense.DefaultSettings()
		Expect(applySetting(&s, "input_folder_id", "folder-in")).To(Succeed())
		Expect(applySetting(&s, "full_name", "Taro Yamada")).To(Succeed())
		Expect(s.Drive.InputFolderID).To(Equal("folder-in"))
		Expect(s.User.FullName).To(Equal("Taro Yamada"))
	})

	It("parses start_row as an integer", func() {
		s := expense.DefaultSettings()
		Expect(applySetting(&s, "start_row", "50")).To(Succeed())
		Expect(s.Expense.StartRow).To(Equal(int64(50)))

		Expect(applySetting(&s, "start_row", "fifty")).NotTo(Succeed())
	})

	It("writes the expense columns", func() {
		s := expense.DefaultSettings()
		Expect(applySetting(&s, "date_column", "C")).To(Succeed())
		Expect(applySetting(&s, "note_column", "G")).To(Succeed())
		Expect(s.Expense.DateColumn).To(Equal("C"))
		Expect(s.Expense.NoteColumn).To(Equal("G"))
	})

	It("rejects unknown keys", func() {
		s := expense.DefaultSettings()
		err := applySetting(&s, "color_scheme", "dark")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown setting"))
	})
})

// syncBuffer makes bytes.Buffer safe for the frontend's two goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("Frontend", func() {
	var (
		mailbox *expense.Mailbox
		out     *syncBuffer
		input   *io.PipeWriter
		done    chan error
	)

	BeforeEach(func() {
		mailbox = expense.NewMailbox()
		out = &syncBuffer{}

		var reader *io.PipeReader
		reader, input = io.Pipe()

		frontend := New(mailbox, expense.DefaultSettings(), reader, out)
		done = make(chan error, 1)
		go func() {
			done <- frontend.Run(context.Background())
		}()
	})

	AfterEach(func() {
		input.Close()
	})

	It("round-trips refresh through a scripted worker", func() {
		job := expense.NewJob("file-1", "receipt.jpg")
		job.Status = expense.StatusOf(expense.StateWaitingUserFix)

		// Scripted worker: answer one refresh, then shut down.
		go func() {
			defer close(mailbox.Events)
			for cmd := range mailbox.Commands {
				if _, ok := cmd.(expense.RefreshJobs); ok {
					mailbox.Events <- expense.JobsLoaded{Jobs: []expense.Job{job}}
				}
			}
		}()

		_, err := io.WriteString(input, "refresh\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(out.String).Should(ContainSubstring("loaded 1 job(s)"))

		_, err = io.WriteString(input, "jobs\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(out.String).Should(ContainSubstring("receipt.jpg"))

		_, err = io.WriteString(input, "quit\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(done).Should(Receive(BeNil()))
		Eventually(out.String).Should(ContainSubstring("worker stopped"))
	})

	It("reports unknown commands without dying", func() {
		go func() {
			defer close(mailbox.Events)
			for range mailbox.Commands {
			}
		}()

		_, err := io.WriteString(input, "frobnicate\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(out.String).Should(ContainSubstring(`unknown command "frobnicate"`))

		_, err = io.WriteString(input, "quit\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(done).Should(Receive(BeNil()))
	})

	It("refuses commit before a target month is set", func() {
		go func() {
			defer close(mailbox.Events)
			for cmd := range mailbox.Commands {
				if _, ok := cmd.(expense.RefreshJobs); ok {
					mailbox.Events <- expense.JobsLoaded{Jobs: []expense.Job{expense.NewJob("file-1", "receipt.jpg")}}
				}
			}
		}()

		_, err := io.WriteString(input, "refresh\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(out.String).Should(ContainSubstring("loaded 1 job(s)"))

		_, err = io.WriteString(input, "commit 1\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(out.String).Should(ContainSubstring("set a target month first"))

		_, err = io.WriteString(input, "quit\n")
		Expect(err).NotTo(HaveOccurred())
		Eventually(done).Should(Receive(BeNil()))
	})
})
