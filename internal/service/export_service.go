package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type rosterReader interface {
	Roster(ctx context.Context, actor models.Actor, id string) (*models.Roster, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

// ExportResult is a rendered file ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders session rosters as CSV or PDF.
type ExportService struct {
	rosters rosterReader
	csv     sheetRenderer
	pdf     sheetRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(rosters rosterReader, logger *zap.Logger, csv, pdf sheetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{rosters: rosters, csv: csv, pdf: pdf, logger: logger}
}

// ExportRoster renders the confirmed students of a session.
func (s *ExportService) ExportRoster(ctx context.Context, actor models.Actor, sessionID string, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	roster, err := s.rosters.Roster(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	sheet := rosterSheet(roster)

	renderer, contentType := s.csv, "text/csv"
	if format == ExportFormatPDF {
		renderer, contentType = s.pdf, "application/pdf"
	}
	payload, err := renderer.Render(sheet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	s.logger.Debug("roster exported", zap.String("session_id", sessionID), zap.String("format", string(format)), zap.Int("entries", len(roster.Entries)))
	return &ExportResult{
		Filename:    fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(roster.Session.Title), roster.Session.Date.Format("20060102"), format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

// rosterColumns follows the field order of models.RosterEntry.
var rosterColumns = []export.Column{
	{Key: "enrollment_id", Label: "Enrollment", Width: 3},
	{Key: "student_id", Label: "Student", Width: 3},
	{Key: "enrolled_at", Label: "Enrolled at", Width: 3},
	{Key: "comment", Label: "Comment", Width: 4},
}

func rosterSheet(roster *models.Roster) export.Sheet {
	session := roster.Session
	rows := make([][]string, 0, len(roster.Entries))
	for _, entry := range roster.Entries {
		rows = append(rows, []string{
			entry.EnrollmentID,
			entry.StudentID,
			entry.EnrolledAt.UTC().Format(time.RFC3339),
			entry.Comment,
		})
	}
	heading := []export.Field{
		{Label: "Date", Value: session.Date.Format("Monday 2 January 2006")},
		{Label: "Window", Value: fmt.Sprintf("%s - %s", session.StartTime, session.EndTime)},
		{Label: "Location", Value: session.Location},
		{Label: "Status", Value: string(session.EffectiveStatus)},
		{Label: "Seats", Value: fmt.Sprintf("%d of %d taken, %d left", session.ConfirmedCount, session.MaxSeats, session.RemainingSeats)},
	}
	return export.Sheet{
		Title:     session.Title,
		Heading:   heading,
		Columns:   rosterColumns,
		Rows:      rows,
		EmptyText: "No confirmed students",
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "session"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
