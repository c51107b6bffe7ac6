package role

import (
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

// noOpViews writes the "Error" field or the template name so tests can
// assert on rendered output without real templates.
type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, data interface{}, _ ...string) error {
	if m, ok := data.(fiber.Map); ok {
		if v, exists := m["Error"]; exists && v != nil {
			_, _ = io.WriteString(w, v.(string))
			return nil
		}
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
	app   *fiber.App
	db    *gorm.DB
	store *rbac.Store
}

// setup builds a fiber app with the role handler registered, an admin
// user holding full role administration permissions, and a logged-in
// session for that user.
func setup(t *testing.T) (*fixture, string) {
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
		&models.GroupMapping{},
		&models.Setting{},
	))

	websess.Init(&memStorage{data: make(map[string][]byte)})

	catalog := rbac.DefaultCatalog()

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	cfg := &config.Config{
		Webserver: config.Webserver{
			Port:    8080,
			URL:     "http://localhost:8080",
			Session: config.Session{ExpiryTime: time.Minute},
		},
	}

	authService := auth.NewService(db)

	var s Service
	s.Init(app, cfg, db, authService, catalog)

	// admin user with full role administration rights
	adminRole := models.Role{Name: "Admin", IsAdmin: true}
	for _, p := range rbac.BuildAll(rbac.ResourceRoles, rbac.CRUDActions) {
		adminRole.Permissions = append(adminRole.Permissions, models.RolePermission{Permission: p})
	}
	require.NoError(t, db.Create(&adminRole).Error)

	adminUser := models.User{
		Active:   true,
		Username: "root",
		Email:    "root@example.com",
		RoleID:   adminRole.ID,
	}
	require.NoError(t, db.Create(&adminUser).Error)

	sessionID := websess.GenerateSessionID()
	sessData := &websess.Data{User: adminUser}
	require.NoError(t, sessData.Write(sessionID, time.Minute))

	return &fixture{app: app, db: db, store: s.store}, sessionID
}

func postForm(t *testing.T, app *fiber.App, sessionID, target string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func TestCreate_AddsBaselinePermissions(t *testing.T) {
	f, sessionID := setup(t)

	form := url.Values{
		"name": {"Billing"},
		"permissions": {
			rbac.Build(rbac.ResourceInvoices, rbac.ActionView),
			rbac.Build(rbac.ResourceInvoices, rbac.ActionCreate),
		},
	}

	resp := postForm(t, f.app, sessionID, Path, form)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	roles, err := f.store.List()
	require.NoError(t, err)

	var billing *rbac.Role
	for i := range roles {
		if roles[i].Name == "Billing" {
			billing = &roles[i]
		}
	}

	require.NotNil(t, billing)
	assert.True(t, billing.Permissions.Has(rbac.Build(rbac.ResourceInvoices, rbac.ActionCreate)))
	assert.True(t, billing.Permissions.Has(rbac.Build(rbac.ResourceSettings, rbac.ActionView)),
		"baseline permissions are granted without being on the form")
	assert.True(t, billing.Permissions.Has(rbac.Build(rbac.ResourceDocs, rbac.ActionView)))
	assert.False(t, billing.Permissions.Has(rbac.Build(rbac.ResourceInvoices, rbac.ActionDelete)))
}

func TestCreate_DuplicateNameRejected(t *testing.T) {
	f, sessionID := setup(t)

	_, err := f.store.Create("Billing", nil)
	require.NoError(t, err)

	resp := postForm(t, f.app, sessionID, Path, url.Values{"name": {"Billing"}})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "already exists")
}

func TestUpdate_RenameProtectedRoleForbidden(t *testing.T) {
	f, sessionID := setup(t)

	protected := models.Role{Name: "System", IsSystem: true}
	require.NoError(t, f.db.Create(&protected).Error)

	form := url.Values{"name": {"Renamed"}}
	resp := postForm(t, f.app, sessionID, Path+"/"+itoa(protected.ID), form)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// permissions of a protected role stay editable when the name is
	// left untouched
	form = url.Values{
		"name":        {"System"},
		"permissions": {rbac.Build(rbac.ResourceReports, rbac.ActionView)},
	}
	resp2 := postForm(t, f.app, sessionID, Path+"/"+itoa(protected.ID), form)
	defer resp2.Body.Close()

	assert.Equal(t, http.StatusFound, resp2.StatusCode)

	got, err := f.store.Get(protected.ID)
	require.NoError(t, err)
	assert.True(t, got.Permissions.Has(rbac.Build(rbac.ResourceReports, rbac.ActionView)))
}

func TestDelete_RoleInUseConflict(t *testing.T) {
	f, sessionID := setup(t)

	role, err := f.store.Create("Viewer", nil)
	require.NoError(t, err)

	user := models.User{Active: true, Username: "viewer", Email: "v@example.com", RoleID: role.ID}
	require.NoError(t, f.db.Create(&user).Error)

	resp := postForm(t, f.app, sessionID, Path+"/"+itoa(role.ID)+"/delete", url.Values{})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// role still there
	_, err = f.store.Get(role.ID)
	assert.NoError(t, err)
}

func TestRoutes_RequirePermission(t *testing.T) {
	f, sessionID := setup(t)

	// a user whose role has no administration permissions
	role, err := f.store.Create("Member", nil)
	require.NoError(t, err)

	member := models.User{Active: true, Username: "member", Email: "m@example.com", RoleID: role.ID}
	require.NoError(t, f.db.Create(&member).Error)

	memberSession := websess.GenerateSessionID()
	sessData := &websess.Data{User: member}
	require.NoError(t, sessData.Write(memberSession, time.Minute))

	req := httptest.NewRequest(http.MethodGet, Path, nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: memberSession})

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// no session at all
	req = httptest.NewRequest(http.MethodGet, Path, nil)

	resp2, err := f.app.Test(req, -1)
	require.NoError(t, err)

	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// the admin session can list
	req = httptest.NewRequest(http.MethodGet, Path, nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp3, err := f.app.Test(req, -1)
	require.NoError(t, err)

	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
