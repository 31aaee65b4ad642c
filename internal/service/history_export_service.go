package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/pkg/export"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

// HistoryFormat is a supported export encoding.
type HistoryFormat string

const (
	HistoryFormatCSV HistoryFormat = "csv"
	HistoryFormatPDF HistoryFormat = "pdf"
)

type historyReader interface {
	History(ctx context.Context, itemID string) (*dto.HistoryResponse, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// HistoryExport is a rendered approval history document.
type HistoryExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// HistoryExportService renders an item's approval ledger for audit printouts.
type HistoryExportService struct {
	history historyReader
	csv     datasetRenderer
	pdf     datasetRenderer
	logger  *zap.Logger
}

// NewHistoryExportService constructs the export service.
func NewHistoryExportService(history historyReader, csv, pdf datasetRenderer, logger *zap.Logger) *HistoryExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &HistoryExportService{history: history, csv: csv, pdf: pdf, logger: logger}
}

// historyColumns lays out the ledger for audit printouts: notes and the replaced
// description hold free text and get most of the landscape width.
var historyColumns = []export.Column{
	{Key: "sequence", Title: "#", Weight: 0.5},
	{Key: "created_at", Title: "Recorded (UTC)", Weight: 1.6},
	{Key: "teacher", Title: "Teacher", Weight: 1.4, Wrap: true},
	{Key: "action", Title: "Action", Weight: 1},
	{Key: "notes", Title: "Notes", Weight: 3, Wrap: true},
	{Key: "previous_description", Title: "Previous description", Weight: 3, Wrap: true},
}

// Export renders the ledger of itemID in the requested format.
func (s *HistoryExportService) Export(ctx context.Context, itemID string, format HistoryFormat) (*HistoryExport, error) {
	format = HistoryFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = HistoryFormatCSV
	}
	if format != HistoryFormatCSV && format != HistoryFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	history, err := s.history.History(ctx, itemID)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Summary: []string{
			fmt.Sprintf("Events: %d", len(history.Events)),
			fmt.Sprintf("Revisions: %d", len(history.Revisions)),
			fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)),
		},
		Title:   fmt.Sprintf("Approval history %s", itemID),
		Columns: historyColumns,
		Rows:    make([]map[string]string, 0, len(history.Events)),
	}
	for _, event := range history.Events {
		teacher := event.TeacherName
		if teacher == "" {
			teacher = event.TeacherID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"sequence":             strconv.FormatInt(event.Sequence, 10),
			"created_at":           event.CreatedAt.UTC().Format(time.RFC3339),
			"teacher":              teacher,
			"action":               string(event.Action),
			"notes":                derefString(event.Notes),
			"previous_description": derefString(event.PreviousDescription),
		})
	}

	var body []byte
	contentType := "text/csv"
	switch format {
	case HistoryFormatPDF:
		contentType = "application/pdf"
		body, err = s.pdf.Render(dataset)
	default:
		body, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render history export")
	}
	s.logger.Debug("history exported", zap.String("item_id", itemID), zap.String("format", string(format)), zap.Int("events", len(history.Events)))
	return &HistoryExport{
		Filename:    fmt.Sprintf("approval-history-%s.%s", itemID, format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
