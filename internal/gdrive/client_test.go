package gdrive

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/api/drive/v3"
)

var _ = Describe("resolveTarget", func() {
	It("returns a spreadsheet id unchanged", func() {
		id, err := resolveTarget("sheet-1", &drive.File{MimeType: spreadsheetMime})
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("sheet-1"))
	})

	It("follows a shortcut to a spreadsheet", func() {
		meta := &drive.File{
			MimeType: shortcutMime,
			ShortcutDetails: &drive.FileShortcutDetails{
				TargetId:       "real-sheet",
				TargetMimeType: spreadsheetMime,
			},
		}
		id, err := resolveTarget("shortcut-1", meta)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("real-sheet"))
	})

	It("rejects a shortcut pointing at a non-spreadsheet", func() {
		meta := &drive.File{
			MimeType: shortcutMime,
			ShortcutDetails: &drive.FileShortcutDetails{
				TargetId:       "doc-1",
				TargetMimeType: "application/vnd.google-apps.document",
			},
		}
		_, err := resolveTarget("shortcut-1", meta)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("must be a spreadsheet"))
	})

	It("rejects a shortcut without target details", func() {
		_, err := resolveTarget("shortcut-1", &drive.File{MimeType: shortcutMime})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no target details"))
	})

	It("rejects any other file type", func() {
		_, err := resolveTarget("img-1", &drive.File{MimeType: "image/png"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("got image/png"))
	})
})

var _ = Describe("countLeadingFilled", func() {
	It("counts contiguous non-empty cells", func() {
		values := [][]any{{"2025-12-01"}, {"2025-12-02"}, {"2025-12-03"}}
		Expect(countLeadingFilled(values)).To(Equal(int64(3)))
	})

	It("stops at the first empty cell", func() {
		values := [][]any{{"2025-12-01"}, {""}, {"2025-12-03"}}
		Expect(countLeadingFilled(values)).To(Equal(int64(1)))
	})

	It("stops at a missing cell", func() {
		values := [][]any{{"2025-12-01"}, {}, {"2025-12-03"}}
		Expect(countLeadingFilled(values)).To(Equal(int64(1)))
	})

	It("ignores whitespace-only cells", func() {
		values := [][]any{{"2025-12-01"}, {"   "}}
		Expect(countLeadingFilled(values)).To(Equal(int64(1)))
	})

	It("returns zero for an empty column", func() {
		Expect(countLeadingFilled(nil)).To(BeZero())
	})
})
