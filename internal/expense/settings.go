package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Settings is the worker's configuration snapshot. It is replaced wholesale
// on an UpdateSettings command; no field is mutated in place.
type Settings struct {
	Drive    DriveSettings    `json:"drive"`
	User     UserSettings     `json:"user"`
	Template TemplateSettings `json:"template"`
	Expense  ExpenseLayout    `json:"expense"`
}

// DriveSettings holds the Drive identifiers the worker operates on.
type DriveSettings struct {
	InputFolderID   string `json:"input_folder_id"`   // folder with receipt images
	OutputFolderID  string `json:"output_folder_id"`  // folder for exported PDFs
	TemplateSheetID string `json:"template_sheet_id"` // template spreadsheet or shortcut
}

// UserSettings holds profile values written into the template.
type UserSettings struct {
	FullName string `json:"full_name"`
}

// TemplateSettings addresses the header cells inside the template sheet.
type TemplateSettings struct {
	NameCell        string `json:"name_cell"`
	TargetMonthCell string `json:"target_month_cell"`
}

// ExpenseLayout describes the receipt table inside the template.
type ExpenseLayout struct {
	StartRow       int64  `json:"start_row"`
	DateColumn     string `json:"date_column"`
	ReasonColumn   string `json:"reason_column"`
	AmountColumn   string `json:"amount_column"`
	CategoryColumn string `json:"category_column"`
	NoteColumn     string `json:"note_column"`
}

// DefaultSettings returns the layout matching the stock expense template.
func DefaultSettings() Settings {
	return Settings{
		User: UserSettings{FullName: "Your Name"},
		Template: TemplateSettings{
			NameCell:        "F3",
			TargetMonthCell: "B3",
		},
		Expense: ExpenseLayout{
			StartRow:       44,
			DateColumn:     "B",
			ReasonColumn:   "C",
			AmountColumn:   "D",
			CategoryColumn: "E",
			NoteColumn:     "F",
		},
	}
}

// SettingsStore persists the settings snapshot between runs.
type SettingsStore interface {
	Load() (Settings, error)
	Save(Settings) error
}

// JSONSettingsStore keeps settings in a single JSON file on disk.
type JSONSettingsStore struct {
	path string
}

// NewJSONSettingsStore creates a JSON-backed settings store.
func NewJSONSettingsStore(path string) *JSONSettingsStore {
	return &JSONSettingsStore{path: path}
}

// Load reads settings from disk. A missing file is not an error on first
// run: defaults are generated, persisted, and returned.
func (s *JSONSettingsStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := DefaultSettings()
			if err := s.Save(cfg); err != nil {
				return Settings{}, fmt.Errorf("writing default settings: %w", err)
			}
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return cfg, nil
}

// Save writes settings as indented JSON, creating parent directories.
func (s *JSONSettingsStore) Save(cfg Settings) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
