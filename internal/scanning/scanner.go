package scanning

// ScanResult is the information extracted from a receipt image. It seeds
// the editable fields of a job; the user can still correct everything.
type ScanResult struct {
	Merchant string `json:"merchant"`
	Date     string `json:"date"`   // YYYY-MM-DD
	Amount   int64  `json:"amount"` // yen
}

// Scanner extracts receipt data from an image or PDF.
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its fields.
	ScanReceipt(imageData []byte, contentType string) (*ScanResult, error)
	// Close releases scanner resources.
	Close() error
}
