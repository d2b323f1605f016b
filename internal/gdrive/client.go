package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ysaito/expense-filer/internal/expense"
)

const (
	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
	shortcutMime    = "application/vnd.google-apps.shortcut"
	pdfMime         = "application/pdf"
)

// Client implements expense.Backend over the Drive v3 and Sheets v4 APIs.
type Client struct {
	drive  *drive.Service
	sheets *sheets.Service
}

// NewClient builds the Drive and Sheets services over one token source.
func NewClient(ctx context.Context, source oauth2.TokenSource) (*Client, error) {
	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	sheetsSvc, err := sheets.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &Client{drive: driveSvc, sheets: sheetsSvc}, nil
}

// ListImages returns the non-trashed image files in a folder.
func (c *Client) ListImages(ctx context.Context, folderID string) ([]expense.RemoteFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false and mimeType contains 'image/'", folderID)
	list, err := c.drive.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing folder: %w", err)
	}

	files := make([]expense.RemoteFile, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, expense.RemoteFile{ID: f.Id, Name: f.Name})
	}
	return files, nil
}

// Download fetches a file's content and content type.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, string, error) {
	resp, err := c.drive.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, "", fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading file body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ResolveSpreadsheet follows a shortcut to the real spreadsheet id. The
// template setting may point at either the spreadsheet itself or a
// shortcut to it; anything else is a configuration error.
func (c *Client) ResolveSpreadsheet(ctx context.Context, fileID string) (string, error) {
	meta, err := c.drive.Files.Get(fileID).
		Fields("mimeType, shortcutDetails(targetId, targetMimeType)").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching file metadata: %w", err)
	}
	return resolveTarget(fileID, meta)
}

// resolveTarget decides the concrete spreadsheet id from file metadata.
func resolveTarget(fileID string, meta *drive.File) (string, error) {
	switch meta.MimeType {
	case spreadsheetMime:
		return fileID, nil
	case shortcutMime:
		if meta.ShortcutDetails == nil {
			return "", fmt.Errorf("shortcut %s has no target details", fileID)
		}
		if meta.ShortcutDetails.TargetMimeType != spreadsheetMime {
			return "", fmt.Errorf("template must be a spreadsheet (shortcut target is %s)",
				meta.ShortcutDetails.TargetMimeType)
		}
		return meta.ShortcutDetails.TargetId, nil
	default:
		return "", fmt.Errorf("template must be a spreadsheet (got %s)", meta.MimeType)
	}
}

// CopySpreadsheet copies a file under a new name and returns the new id.
func (c *Client) CopySpreadsheet(ctx context.Context, fileID, name string) (string, error) {
	copied, err := c.drive.Files.Copy(fileID, &drive.File{Name: name}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("copying file: %w", err)
	}
	return copied.Id, nil
}

// FirstSheetTitle returns the title of the spreadsheet's first sheet,
// needed to build addressable ranges.
func (c *Client) FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := c.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("sheets(properties(title))").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching spreadsheet: %w", err)
	}
	if len(ss.Sheets) == 0 {
		return "", fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

// CountFilledRows counts contiguous non-empty cells in a column starting
// at startRow. The count is recomputed on every call instead of cached;
// a writer outside this process can still race it.
func (c *Client) CountFilledRows(ctx context.Context, spreadsheetID, sheetTitle, column string, startRow int64) (int64, error) {
	rng := fmt.Sprintf("%s!%s%d:%s", sheetTitle, column, startRow, column)
	values, err := c.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("reading column %s: %w", column, err)
	}
	return countLeadingFilled(values.Values), nil
}

// countLeadingFilled stops at the first empty cell; that row is the next
// insertion point.
func countLeadingFilled(values [][]any) int64 {
	var n int64
	for _, row := range values {
		if len(row) == 0 {
			break
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == "" {
			break
		}
		n++
	}
	return n
}

// BatchWrite applies all range updates in one values.batchUpdate call.
func (c *Client) BatchWrite(ctx context.Context, spreadsheetID string, updates []expense.RangeUpdate) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{Range: u.Range, Values: u.Values})
	}
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	if _, err := c.sheets.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("batch updating values: %w", err)
	}
	return nil
}

// ExportPDF exports a spreadsheet as PDF and verifies the bytes parse as
// one before handing them back.
func (c *Client) ExportPDF(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.drive.Files.Export(fileID, pdfMime).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("exporting file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading export body: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("validating exported pdf: %w", err)
	}
	return data, nil
}

// UploadPDF uploads PDF bytes into a folder and returns the new file id.
func (c *Client) UploadPDF(ctx context.Context, folderID, filename string, data []byte) (string, error) {
	meta := &drive.File{
		Name:     filename,
		Parents:  []string{folderID},
		MimeType: pdfMime,
	}
	created, err := c.drive.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}
	return created.Id, nil
}
