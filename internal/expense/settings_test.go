package expense

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("JSONSettingsStore", func() {
	var (
		dir   string
		path  string
		store *JSONSettingsStore
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "settings.json")
		store = NewJSONSettingsStore(path)
	})

	It("generates and persists defaults on first run", func() {
		cfg, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(DefaultSettings()))
		Expect(cfg.Template.NameCell).To(Equal("F3"))
		Expect(cfg.Expense.StartRow).To(Equal(int64(44)))

		// The defaults were written, not just returned.
		Expect(path).To(BeARegularFile())
	})

	It("round-trips a saved snapshot", func() {
		cfg := DefaultSettings()
		cfg.Drive.InputFolderID = "folder-in"
		cfg.User.FullName = "Taro Yamada"
		Expect(store.Save(cfg)).To(Succeed())

		loaded, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(cfg))
	})

	It("creates parent directories on save", func() {
		nested := NewJSONSettingsStore(filepath.Join(dir, "conf", "deep", "settings.json"))
		Expect(nested.Save(DefaultSettings())).To(Succeed())
	})

	It("fails on unparseable content", func() {
		Expect(os.WriteFile(path, []byte("{not json"), 0o644)).To(Succeed())
		_, err := store.Load()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("parsing settings"))
	})
})

var _ = Describe("LocalArchive", func() {
	It("creates its directory and stores files", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "archive")
		archive, err := NewLocalArchive(dir)
		Expect(err).NotTo(HaveOccurred())

		path, err := archive.Save("report.pdf", []byte("%PDF-1.4"))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, "report.pdf")))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("%PDF-1.4")))
	})
})
