package expense

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Job", func() {
	Describe("NewJob", func() {
		It("assigns a unique stable id and queued status", func() {
			a := NewJob("file-1", "a.jpg")
			b := NewJob("file-2", "b.jpg")
			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(a.Status.State).To(Equal(StateQueued))
			Expect(a.FileID).To(Equal("file-1"))
			Expect(a.Filename).To(Equal("a.jpg"))
		})
	})

	Describe("JobStatus", func() {
		It("treats done and error as terminal", func() {
			Expect(StatusOf(StateDone).Terminal()).To(BeTrue())
			Expect(StatusError("boom").Terminal()).To(BeTrue())
			Expect(StatusOf(StateWritingSheet).Terminal()).To(BeFalse())
			Expect(StatusOf(StateWaitingUserFix).Terminal()).To(BeFalse())
		})

		It("renders the error message inline", func() {
			Expect(StatusError("copy failed").String()).To(Equal("error: copy failed"))
			Expect(StatusOf(StateUploadingPdf).String()).To(Equal("uploading_pdf"))
		})
	})

	Describe("canTransition", func() {
		It("walks the pipeline forward only", func() {
			Expect(canTransition(StateQueued, StateWaitingUserFix)).To(BeTrue())
			Expect(canTransition(StateWaitingUserFix, StateWritingSheet)).To(BeTrue())
			Expect(canTransition(StateWritingSheet, StateExportingPdf)).To(BeTrue())
			Expect(canTransition(StateExportingPdf, StateUploadingPdf)).To(BeTrue())
			Expect(canTransition(StateUploadingPdf, StateDone)).To(BeTrue())
		})

		It("never moves backward or skips a stage", func() {
			Expect(canTransition(StateExportingPdf, StateWritingSheet)).To(BeFalse())
			Expect(canTransition(StateWritingSheet, StateUploadingPdf)).To(BeFalse())
			Expect(canTransition(StateWaitingUserFix, StateDone)).To(BeFalse())
		})

		It("lets any non-terminal state fail", func() {
			for _, from := range []JobState{StateQueued, StateWaitingUserFix, StateWritingSheet, StateExportingPdf, StateUploadingPdf} {
				Expect(canTransition(from, StateError)).To(BeTrue(), "from %s", from)
			}
			Expect(canTransition(StateDone, StateError)).To(BeFalse())
			Expect(canTransition(StateError, StateError)).To(BeFalse())
		})

		It("restarts finished and failed jobs at writing_sheet", func() {
			Expect(canTransition(StateError, StateWritingSheet)).To(BeTrue())
			Expect(canTransition(StateDone, StateWritingSheet)).To(BeTrue())
		})
	})
})
