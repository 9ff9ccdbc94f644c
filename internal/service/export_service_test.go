package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/export"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *schedulingFixture, string) {
	t.Helper()
	f := newSchedulingFixture(t)
	session := f.tomorrowSession(hm(9, 0), hm(10, 0), 5)
	for _, id := range []string{"student-a", "student-b"} {
		_, err := f.enrollments.Enroll(context.Background(), student(id), session.ID, EnrollRequest{Comment: "see you"})
		require.NoError(t, err)
	}
	svc := NewExportService(f.sessions, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, f, session.ID
}

func TestExportServiceRosterCSV(t *testing.T) {
	svc, _, sessionID := newExportServiceForTest(t)

	result, err := svc.ExportRoster(context.Background(), tutorActor, sessionID, "CSV")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "roster_Calculus_review_20261021.csv", result.Filename)

	records, err := csv.NewReader(bytes.NewReader(result.Payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"enrollment_id", "student_id", "enrolled_at", "comment"}, records[0])
	assert.NotEmpty(t, records[1][0])
	assert.Equal(t, "student-a", records[1][1])
	assert.Equal(t, "see you", records[1][3])
}

func TestExportServiceRosterSheetHeading(t *testing.T) {
	_, f, sessionID := newExportServiceForTest(t)

	roster, err := f.sessions.Roster(context.Background(), tutorActor, sessionID)
	require.NoError(t, err)
	sheet := rosterSheet(roster)

	assert.Equal(t, "Calculus review", sheet.Title)
	headings := map[string]string{}
	for _, field := range sheet.Heading {
		headings[field.Label] = field.Value
	}
	assert.Equal(t, "Wednesday 21 October 2026", headings["Date"])
	assert.Equal(t, "09:00 - 10:00", headings["Window"])
	assert.Equal(t, "Library 2.10", headings["Location"])
	assert.Equal(t, "SCHEDULED", headings["Status"])
	assert.Equal(t, "2 of 5 taken, 3 left", headings["Seats"])
	require.Len(t, sheet.Rows, 2)
	assert.Len(t, sheet.Rows[0], len(sheet.Columns))
}

func TestExportServiceRosterPDF(t *testing.T) {
	svc, _, sessionID := newExportServiceForTest(t)

	result, err := svc.ExportRoster(context.Background(), adminActor, sessionID, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	require.Greater(t, len(result.Payload), 4)
	assert.Equal(t, "%PDF", string(result.Payload[:4]))
}

func TestExportServiceRosterRejects(t *testing.T) {
	svc, _, sessionID := newExportServiceForTest(t)

	_, err := svc.ExportRoster(context.Background(), tutorActor, sessionID, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportRoster(context.Background(), otherTutor, sessionID, ExportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
