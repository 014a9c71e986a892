package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHistoryStore struct {
	runs    map[string]*models.History
	deleted []string
}

func (f *fakeHistoryStore) Get(id string) (*models.History, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (f *fakeHistoryStore) List(filter models.HistoryFilter) ([]*models.History, error) {
	var out []*models.History
	for _, run := range f.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeHistoryStore) Delete(id string) error {
	if _, ok := f.runs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.runs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeActive map[string]bool

func (f fakeActive) IsActive(id string) bool { return f[id] }

func TestHistoryGetByID(t *testing.T) {
	store := &fakeHistoryStore{runs: map[string]*models.History{
		"gen-1": {ID: "gen-1", Status: models.StatusSuccess, Title: "Weekly Digest"},
	}}
	h := NewHistoryHandler(store, fakeActive{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/history/gen-1", nil)
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var run models.History
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if run.ID != "gen-1" || run.Title != "Weekly Digest" {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestHistoryGetUnknownIDReturns404(t *testing.T) {
	h := NewHistoryHandler(&fakeHistoryStore{runs: map[string]*models.History{}}, fakeActive{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/history/nope", nil)
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHistoryDeleteRunningReturns409(t *testing.T) {
	store := &fakeHistoryStore{runs: map[string]*models.History{
		"gen-1": {ID: "gen-1", Status: models.StatusRunning},
	}}
	h := NewHistoryHandler(store, fakeActive{"gen-1": true}, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/history/gen-1", nil)
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if len(store.deleted) != 0 {
		t.Error("running generation must not be deleted")
	}
}

func TestHistoryDelete(t *testing.T) {
	store := &fakeHistoryStore{runs: map[string]*models.History{
		"gen-1": {ID: "gen-1", Status: models.StatusSuccess},
	}}
	h := NewHistoryHandler(store, fakeActive{}, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/history/gen-1", nil)
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "gen-1" {
		t.Errorf("expected gen-1 deleted, got %v", store.deleted)
	}
}

type fakeTemplateStore struct {
	templates map[string]*models.Template
	created   *models.Template
}

func (f *fakeTemplateStore) Create(tmpl *models.Template) error {
	tmpl.ID = "tpl-new"
	f.created = tmpl
	return nil
}

func (f *fakeTemplateStore) Get(id string) (*models.Template, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tmpl, nil
}

func (f *fakeTemplateStore) List() ([]*models.Template, error) {
	var out []*models.Template
	for _, tmpl := range f.templates {
		out = append(out, tmpl)
	}
	return out, nil
}

func (f *fakeTemplateStore) Update(tmpl *models.Template) error {
	if _, ok := f.templates[tmpl.ID]; !ok {
		return sql.ErrNoRows
	}
	f.templates[tmpl.ID] = tmpl
	return nil
}

func (f *fakeTemplateStore) Delete(id string) error {
	if _, ok := f.templates[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.templates, id)
	return nil
}

func TestTemplateCreateRejectsBrokenBody(t *testing.T) {
	store := &fakeTemplateStore{templates: map[string]*models.Template{}}
	h := NewTemplateHandler(store, testLogger())

	body := `{"name": "broken", "body": "{{.Title"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Collection(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created != nil {
		t.Error("broken template must not be saved")
	}
}

func TestTemplateCreate(t *testing.T) {
	store := &fakeTemplateStore{templates: map[string]*models.Template{}}
	h := NewTemplateHandler(store, testLogger())

	body := `{"name": "simple", "body": "<h1>{{.Title}}</h1>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Collection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil || store.created.Name != "simple" {
		t.Fatalf("template not saved: %+v", store.created)
	}
	if store.created.IsBuiltin {
		t.Error("API-created templates must never be builtin")
	}
}

func TestTemplatePreviewRendersMockContent(t *testing.T) {
	h := NewTemplateHandler(&fakeTemplateStore{}, testLogger())

	body := `{"body": "<p>{{.TotalItems}} items in {{.Title}}</p>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates/preview", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Preview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !strings.Contains(resp["html"], "items in") {
		t.Errorf("unexpected preview html %q", resp["html"])
	}
}

type fakeScheduleStore struct {
	schedules map[string]*models.Schedule
	created   *models.Schedule
}

func (f *fakeScheduleStore) Create(s *models.Schedule) error {
	s.ID = "sched-new"
	f.created = s
	return nil
}

func (f *fakeScheduleStore) Get(id string) (*models.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeScheduleStore) List() ([]*models.Schedule, error) { return nil, nil }

func (f *fakeScheduleStore) Update(s *models.Schedule) error {
	if _, ok := f.schedules[s.ID]; !ok {
		return sql.ErrNoRows
	}
	f.schedules[s.ID] = s
	return nil
}

func (f *fakeScheduleStore) Delete(id string) error {
	if _, ok := f.schedules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.schedules, id)
	return nil
}

type fakeGenerationStarter struct {
	started []string
}

func (f *fakeGenerationStarter) StartGeneration(cfg models.GenerationConfig, scheduleID string) (*models.History, error) {
	f.started = append(f.started, scheduleID)
	return &models.History{ID: "gen-1", Status: models.StatusPending}, nil
}

func TestScheduleCreateRejectsInvalidCron(t *testing.T) {
	store := &fakeScheduleStore{schedules: map[string]*models.Schedule{}}
	h := NewScheduleHandler(store, &fakeGenerationStarter{}, testLogger())

	body := `{"name": "weekly", "cron_expr": "whenever"}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Collection(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created != nil {
		t.Error("invalid schedule must not be saved")
	}
}

func TestScheduleCreateComputesNextRun(t *testing.T) {
	store := &fakeScheduleStore{schedules: map[string]*models.Schedule{}}
	h := NewScheduleHandler(store, &fakeGenerationStarter{}, testLogger())

	body := `{"name": "weekly", "cron_expr": "0 8 * * 1", "enabled": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Collection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil || store.created.NextRunAt == nil {
		t.Fatal("enabled schedule must have next_run_at set")
	}
	if !store.created.NextRunAt.After(time.Now()) {
		t.Errorf("next_run_at %v is not in the future", store.created.NextRunAt)
	}
}

func TestScheduleRunNow(t *testing.T) {
	store := &fakeScheduleStore{schedules: map[string]*models.Schedule{
		"sched-1": {ID: "sched-1", Name: "weekly", CronExpr: "0 8 * * 1", Config: models.DefaultGenerationConfig()},
	}}
	starter := &fakeGenerationStarter{}
	h := NewScheduleHandler(store, starter, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/schedules/sched-1/run", nil)
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(starter.started) != 1 || starter.started[0] != "sched-1" {
		t.Errorf("expected run for sched-1, got %v", starter.started)
	}
}

type fakeSettingsStore struct {
	configs map[models.ServiceName]models.ServiceConfig
	saved   map[models.ServiceName]models.ServiceConfig
}

func (f *fakeSettingsStore) GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error) {
	return f.configs[service], nil
}

func (f *fakeSettingsStore) SetServiceConfig(service models.ServiceName, cfg models.ServiceConfig) error {
	if f.saved == nil {
		f.saved = make(map[models.ServiceName]models.ServiceConfig)
	}
	f.saved[service] = cfg
	return nil
}

func TestSettingsGetRedactsSecrets(t *testing.T) {
	store := &fakeSettingsStore{configs: map[models.ServiceName]models.ServiceConfig{
		models.ServiceTautulli: {Enabled: true, URL: "http://tautulli:8181", APIKey: "super-secret"},
	}}
	h := NewSettingsHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/settings/services/tautulli", nil)
	rec := httptest.NewRecorder()
	h.ServiceByName(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Error("API key leaked in response")
	}
	if !strings.Contains(rec.Body.String(), secretPlaceholder) {
		t.Error("expected placeholder in place of the API key")
	}
}

func TestSettingsUpdateKeepsSecretOnPlaceholder(t *testing.T) {
	store := &fakeSettingsStore{configs: map[models.ServiceName]models.ServiceConfig{
		models.ServiceTautulli: {Enabled: true, URL: "http://tautulli:8181", APIKey: "super-secret"},
	}}
	h := NewSettingsHandler(store, testLogger())

	body := `{"enabled": false, "url": "http://tautulli:8181", "api_key": "` + secretPlaceholder + `"}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings/services/tautulli", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServiceByName(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := store.saved[models.ServiceTautulli]
	if saved.APIKey != "super-secret" {
		t.Errorf("placeholder overwrote the stored key: %q", saved.APIKey)
	}
	if saved.Enabled {
		t.Error("enabled flag change was lost")
	}
}

func TestSettingsUnknownServiceReturns404(t *testing.T) {
	h := NewSettingsHandler(&fakeSettingsStore{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/settings/services/jellyfin", nil)
	rec := httptest.NewRecorder()
	h.ServiceByName(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSettingsTestUnconfiguredService(t *testing.T) {
	h := NewSettingsHandler(&fakeSettingsStore{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/settings/services/ghost/test", nil)
	rec := httptest.NewRecorder()
	h.ServiceByName(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not configured") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
