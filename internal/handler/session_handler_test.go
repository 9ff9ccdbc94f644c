package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

type fakeSessionSrv struct {
	view       *models.SessionView
	err        error
	lastActor  models.Actor
	lastFilter models.SessionFilter
	lastCreate service.CreateSessionRequest
	reconciled []string
}

func (f *fakeSessionSrv) CreateSession(_ context.Context, actor models.Actor, req service.CreateSessionRequest) (*models.SessionView, error) {
	f.lastActor, f.lastCreate = actor, req
	return f.view, f.err
}

func (f *fakeSessionSrv) EditSession(_ context.Context, actor models.Actor, _ string, _ service.UpdateSessionRequest) (*models.SessionView, error) {
	f.lastActor = actor
	return f.view, f.err
}

func (f *fakeSessionSrv) CancelSession(_ context.Context, _ models.Actor, id string) (*models.StatusTransition, error) {
	return &models.StatusTransition{SessionID: id, Previous: models.SessionStatusScheduled, Current: models.SessionStatusCancelled}, f.err
}

func (f *fakeSessionSrv) RestoreSession(_ context.Context, _ models.Actor, id string) (*models.StatusTransition, error) {
	return &models.StatusTransition{SessionID: id, Previous: models.SessionStatusCancelled, Current: models.SessionStatusScheduled}, f.err
}

func (f *fakeSessionSrv) DeleteSession(context.Context, models.Actor, string) error { return f.err }

func (f *fakeSessionSrv) GetSession(context.Context, string) (*models.SessionView, error) {
	return f.view, f.err
}

func (f *fakeSessionSrv) ListSessions(_ context.Context, actor models.Actor, filter models.SessionFilter) ([]models.SessionView, *models.Pagination, error) {
	f.lastActor, f.lastFilter = actor, filter
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.SessionView{*f.view}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeSessionSrv) ListAvailable(context.Context, models.Actor, models.AvailableSessionFilter) ([]models.SessionView, *models.Pagination, error) {
	return nil, &models.Pagination{}, f.err
}

func (f *fakeSessionSrv) CheckOverlap(context.Context, models.Actor, service.OverlapCheckRequest) (*models.OverlapCheck, error) {
	return &models.OverlapCheck{Overlaps: true, Conflicts: []models.OverlapConflict{{SessionID: "s-2"}}}, f.err
}

func (f *fakeSessionSrv) EffectiveStatus(context.Context, string) (models.SessionStatus, error) {
	return models.SessionStatusInProgress, f.err
}

func (f *fakeSessionSrv) RemainingSeats(context.Context, string) (int, error) { return 3, f.err }

func (f *fakeSessionSrv) Reconcile(_ context.Context, id string) (*models.StatusTransition, error) {
	f.reconciled = append(f.reconciled, id)
	return &models.StatusTransition{SessionID: id}, f.err
}

func (f *fakeSessionSrv) Roster(context.Context, models.Actor, string) (*models.Roster, error) {
	return &models.Roster{Session: *f.view}, f.err
}

type fakeExporter struct{ format service.ExportFormat }

func (f *fakeExporter) ExportRoster(_ context.Context, _ models.Actor, _ string, format service.ExportFormat) (*service.ExportResult, error) {
	f.format = format
	return &service.ExportResult{Filename: "roster_x_20261021.csv", ContentType: "text/csv", Payload: []byte("student_id\n")}, nil
}

func sampleView() *models.SessionView {
	return &models.SessionView{
		Session: models.Session{
			ID:       "s-1",
			TutorID:  "tutor-1",
			Title:    "Calculus",
			Date:     time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC),
			MaxSeats: 5,
			Status:   models.SessionStatusScheduled,
		},
		EffectiveStatus: models.SessionStatusScheduled,
		RemainingSeats:  5,
	}
}

func newContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

var (
	tutorClaims   = &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}
	studentClaims = &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	adminClaims   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
)

func TestSessionHandlerCreateRequiresClaims(t *testing.T) {
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, nil)

	c, rec := newContext(http.MethodPost, "/sessions", []byte(`{}`), nil)
	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionHandlerCreate(t *testing.T) {
	srv := &fakeSessionSrv{view: sampleView()}
	handler := NewSessionHandler(srv, nil)

	body := []byte(`{"subject_id":"math","title":"Calculus","date":"2026-10-21","start_time":"09:00","end_time":"10:00","location":"B12","max_seats":5}`)
	c, rec := newContext(http.MethodPost, "/sessions", body, tutorClaims)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tutor-1", srv.lastActor.UserID)
	assert.Equal(t, "09:00", srv.lastCreate.StartTime)
	assert.Equal(t, 5, srv.lastCreate.MaxSeats)
}

func TestSessionHandlerCreateMapsDomainErrors(t *testing.T) {
	srv := &fakeSessionSrv{err: appErrors.Clone(appErrors.ErrOverlap, "overlaps")}
	handler := NewSessionHandler(srv, nil)

	c, rec := newContext(http.MethodPost, "/sessions", []byte(`{"title":"x"}`), tutorClaims)
	handler.Create(c)

	assert.Equal(t, appErrors.ErrOverlap.Status, rec.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrOverlap.Code, envelope.Error.Code)
}

func TestSessionHandlerCreateRejectsMalformedJSON(t *testing.T) {
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, nil)

	c, rec := newContext(http.MethodPost, "/sessions", []byte(`{"title":`), tutorClaims)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlerListParsesFilter(t *testing.T) {
	srv := &fakeSessionSrv{view: sampleView()}
	handler := NewSessionHandler(srv, nil)

	c, rec := newContext(http.MethodGet, "/sessions?status=scheduled&date_from=2026-10-20&page=2&limit=5&order=desc", nil, adminClaims)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionStatusScheduled, srv.lastFilter.Status)
	require.NotNil(t, srv.lastFilter.DateFrom)
	assert.Equal(t, 20, srv.lastFilter.DateFrom.Day())
	assert.Nil(t, srv.lastFilter.DateTo)
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
	assert.Equal(t, "desc", srv.lastFilter.SortOrder)
}

func TestSessionHandlerListRejectsBadDate(t *testing.T) {
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, nil)

	c, rec := newContext(http.MethodGet, "/sessions?date_to=21/10/2026", nil, adminClaims)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlerReconcileChecksOwnership(t *testing.T) {
	srv := &fakeSessionSrv{view: sampleView()}
	handler := NewSessionHandler(srv, nil)

	other := &models.JWTClaims{UserID: "tutor-2", Role: models.RoleTutor}
	c, rec := newContext(http.MethodPost, "/sessions/s-1/reconcile", nil, other)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Reconcile(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, srv.reconciled)

	c, rec = newContext(http.MethodPost, "/sessions/s-1/reconcile", nil, tutorClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Reconcile(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s-1"}, srv.reconciled)
}

func TestSessionHandlerStatusAndSeats(t *testing.T) {
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, nil)

	c, rec := newContext(http.MethodGet, "/sessions/s-1/status", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Status(c)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "IN_PROGRESS", envelope.Data["effective_status"])

	c, rec = newContext(http.MethodGet, "/sessions/s-1/seats", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Seats(c)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(3), envelope.Data["remaining_seats"])
}

func TestSessionHandlerExportRoster(t *testing.T) {
	exporter := &fakeExporter{}
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, exporter)

	c, rec := newContext(http.MethodGet, "/sessions/s-1/roster/export", nil, tutorClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.ExportRoster(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExportFormat("csv"), exporter.format)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster_x_20261021.csv")
	assert.Equal(t, "student_id\n", rec.Body.String())
}

func TestSessionHandlerExportDisabled(t *testing.T) {
	handler := NewSessionHandler(&fakeSessionSrv{view: sampleView()}, nil)

	c, rec := newContext(http.MethodGet, "/sessions/s-1/roster/export?format=pdf", nil, tutorClaims)
	handler.ExportRoster(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
