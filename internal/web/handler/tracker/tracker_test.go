package tracker

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
	websess "github.com/tempora-app/tempora/internal/web/session"
)

// listViews exposes the entry count and scope flag of the rendered list
// so tests can assert on visibility without real templates.
type listViews struct{}

func (listViews) Load() error { return nil }

func (listViews) Render(w io.Writer, name string, data interface{}, _ ...string) error {
	m, ok := data.(fiber.Map)
	if !ok {
		_, _ = io.WriteString(w, name)
		return nil
	}

	if v, exists := m["Error"]; exists && v != nil {
		_, _ = io.WriteString(w, v.(string))
		return nil
	}

	if entries, exists := m["Entries"].([]models.TimeEntry); exists {
		fmt.Fprintf(w, "%s;entries=%d;all=%v", name, len(entries), m["ShowsAll"])
		return nil
	}

	_, _ = io.WriteString(w, name)

	return nil
}

type memStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (s *memStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data[key], nil
}

func (s *memStorage) Set(key string, val []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val

	return nil
}

func (s *memStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)

	return nil
}

func (s *memStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)

	return nil
}

func (s *memStorage) Close() error { return nil }

type fixture struct {
	app      *fiber.App
	db       *gorm.DB
	employee models.User
	manager  models.User
}

// setup builds the tracker handler with two users: an employee holding
// the base tracker permissions and a manager who additionally holds the
// all-users scope.
func setup(t *testing.T) (*fixture, map[uint64]string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.RolePermission{},
		&models.User{},
		&models.TimeEntry{},
	))

	websess.Init(&memStorage{data: make(map[string][]byte)})

	app := fiber.New(fiber.Config{Views: listViews{}})
	cfg := &config.Config{
		Webserver: config.Webserver{
			Port:    8080,
			URL:     "http://localhost:8080",
			Session: config.Session{ExpiryTime: time.Minute},
		},
	}

	var s Service
	s.Init(app, cfg, db, auth.NewService(db))

	employeeRole := models.Role{Name: "Employee"}
	for _, p := range rbac.BuildAll(rbac.ResourceTracker, rbac.CRUDActions) {
		employeeRole.Permissions = append(employeeRole.Permissions, models.RolePermission{Permission: p})
	}
	require.NoError(t, db.Create(&employeeRole).Error)

	managerRole := models.Role{Name: "Manager"}
	for _, p := range rbac.BuildAll(rbac.ResourceTracker, rbac.CRUDActions) {
		managerRole.Permissions = append(managerRole.Permissions, models.RolePermission{Permission: p})
	}

	managerRole.Permissions = append(managerRole.Permissions, models.RolePermission{
		Permission: rbac.Build(rbac.ResourceTrackerAll, rbac.ActionView),
	})
	require.NoError(t, db.Create(&managerRole).Error)

	employee := models.User{Active: true, Username: "worker", Email: "w@example.com", RoleID: employeeRole.ID}
	require.NoError(t, db.Create(&employee).Error)

	manager := models.User{Active: true, Username: "boss", Email: "b@example.com", RoleID: managerRole.ID}
	require.NoError(t, db.Create(&manager).Error)

	sessions := make(map[uint64]string)

	for _, u := range []models.User{employee, manager} {
		id := websess.GenerateSessionID()
		sessData := &websess.Data{User: u}
		require.NoError(t, sessData.Write(id, time.Minute))
		sessions[u.ID] = id
	}

	return &fixture{app: app, db: db, employee: employee, manager: manager}, sessions
}

func doPost(t *testing.T, app *fiber.App, sessionID, target string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func doGet(t *testing.T, app *fiber.App, sessionID, target string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	return resp, string(body)
}

func TestStartAndStop(t *testing.T) {
	f, sessions := setup(t)
	sess := sessions[f.employee.ID]

	resp := doPost(t, f.app, sess, Path+"/start", url.Values{"project": {"internal"}})
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var running models.TimeEntry
	require.NoError(t, f.db.Where("user_id = ?", f.employee.ID).First(&running).Error)
	assert.True(t, running.EndedAt.IsZero())
	assert.Equal(t, "internal", running.Project)

	resp2 := doPost(t, f.app, sess, Path+"/stop", url.Values{})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusFound, resp2.StatusCode)

	require.NoError(t, f.db.First(&running, running.ID).Error)
	assert.False(t, running.EndedAt.IsZero())
}

func TestStart_ClosesPreviousRunningEntry(t *testing.T) {
	f, sessions := setup(t)
	sess := sessions[f.employee.ID]

	resp := doPost(t, f.app, sess, Path+"/start", url.Values{"project": {"first"}})
	resp.Body.Close()

	resp = doPost(t, f.app, sess, Path+"/start", url.Values{"project": {"second"}})
	resp.Body.Close()

	var open []models.TimeEntry
	require.NoError(t, f.db.
		Where("user_id = ? AND ended_at = ?", f.employee.ID, time.Time{}).
		Find(&open).Error)

	require.Len(t, open, 1)
	assert.Equal(t, "second", open[0].Project)
}

func TestCreate_ManualEntry(t *testing.T) {
	f, sessions := setup(t)
	sess := sessions[f.employee.ID]

	form := url.Values{
		"project":     {"client-x"},
		"description": {"sprint review"},
		"started_at":  {"2026-08-24T09:00"},
		"ended_at":    {"2026-08-24T11:30"},
	}

	resp := doPost(t, f.app, sess, Path, form)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var entry models.TimeEntry
	require.NoError(t, f.db.Where("project = ?", "client-x").First(&entry).Error)
	assert.Equal(t, 150*time.Minute, entry.EndedAt.Sub(entry.StartedAt))
}

func TestCreate_EndBeforeStartRejected(t *testing.T) {
	f, sessions := setup(t)
	sess := sessions[f.employee.ID]

	form := url.Values{
		"project":    {"client-x"},
		"started_at": {"2026-08-24T11:00"},
		"ended_at":   {"2026-08-24T09:00"},
	}

	resp := doPost(t, f.app, sess, Path, form)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, f.db.Model(&models.TimeEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestList_ScopeWidensVisibility(t *testing.T) {
	f, sessions := setup(t)

	entries := []models.TimeEntry{
		{UserID: f.employee.ID, Project: "a", StartedAt: time.Now().Add(-2 * time.Hour), EndedAt: time.Now().Add(-time.Hour)},
		{UserID: f.manager.ID, Project: "b", StartedAt: time.Now().Add(-3 * time.Hour), EndedAt: time.Now().Add(-2 * time.Hour)},
	}
	for i := range entries {
		require.NoError(t, f.db.Create(&entries[i]).Error)
	}

	// the employee only sees their own entry
	resp, body := doGet(t, f.app, sessions[f.employee.ID], Path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "entries=1;all=false")

	// the manager's scope shows everything
	resp2, body2 := doGet(t, f.app, sessions[f.manager.ID], Path)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Contains(t, body2, "entries=2;all=true")
}

func TestUpdate_OwnershipEnforced(t *testing.T) {
	f, sessions := setup(t)

	foreign := models.TimeEntry{
		UserID:    f.manager.ID,
		Project:   "managers-own",
		StartedAt: time.Now().Add(-time.Hour),
		EndedAt:   time.Now(),
	}
	require.NoError(t, f.db.Create(&foreign).Error)

	form := url.Values{
		"project":    {"hijacked"},
		"started_at": {"2026-08-24T09:00"},
		"ended_at":   {"2026-08-24T10:00"},
	}

	id := strconv.FormatUint(foreign.ID, 10)

	// the employee holds tracker.update but not the all-users scope
	resp := doPost(t, f.app, sessions[f.employee.ID], Path+"/"+id, form)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var unchanged models.TimeEntry
	require.NoError(t, f.db.First(&unchanged, foreign.ID).Error)
	assert.Equal(t, "managers-own", unchanged.Project)

	// the manager can edit their own entry
	resp2 := doPost(t, f.app, sessions[f.manager.ID], Path+"/"+id, form)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusFound, resp2.StatusCode)
}

func TestDelete_OwnEntry(t *testing.T) {
	f, sessions := setup(t)

	entry := models.TimeEntry{
		UserID:    f.employee.ID,
		Project:   "done",
		StartedAt: time.Now().Add(-time.Hour),
		EndedAt:   time.Now(),
	}
	require.NoError(t, f.db.Create(&entry).Error)

	resp := doPost(t, f.app, sessions[f.employee.ID],
		Path+"/"+strconv.FormatUint(entry.ID, 10)+"/delete", url.Values{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	err := f.db.First(&models.TimeEntry{}, entry.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
