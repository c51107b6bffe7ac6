package login

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/session"
)

const (
	// Path is the path to the login page.
	Path = "/login"

	// TemplateName is the name of the login template.
	TemplateName = "login"

	// AuthTypeLocal selects local database authentication.
	AuthTypeLocal = "local"

	// AuthTypeLDAP selects LDAP authentication.
	AuthTypeLDAP = "ldap"
)

// Service is the login handler service.
type Service struct {
	handler.Service
	cfg       *config.Config
	db        *gorm.DB
	localAuth *auth.LocalProvider
	ldapAuth  *auth.LDAPProvider
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler and its authentication providers.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) error {
	if app == nil || cfg == nil || db == nil {
		return errors.New("app, cfg or db is nil")
	}

	s.db = db
	s.cfg = cfg

	if cfg.Auth.Local.Enabled {
		s.localAuth = auth.NewLocalProvider(db)
	}

	if cfg.Auth.LDAP.Enabled {
		ldapAuth, err := auth.NewLDAPProvider(ldapConfig(&cfg.Auth.LDAP), db, auth.NewService(db))
		if err != nil {
			log.Warn().Err(err).Msg("ldap provider unavailable, ldap login disabled")
		} else {
			s.ldapAuth = ldapAuth
		}
	}

	// register routes
	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RootPath, s.Get)
		router.Post(handler.RootPath, s.Post)
	})

	return nil
}

// ldapConfig converts the TOML LDAP settings into the provider config.
func ldapConfig(c *config.AuthLDAP) *auth.LDAPConfig {
	return &auth.LDAPConfig{
		Enabled:       c.Enabled,
		Host:          c.Host,
		Port:          c.Port,
		UseSSL:        c.UseSSL,
		UseTLS:        c.UseTLS,
		SkipVerify:    c.SkipVerify,
		BindDN:        c.BindDN,
		BindPassword:  c.BindPassword,
		BaseDN:        c.BaseDN,
		UserFilter:    c.UserFilter,
		GroupBaseDN:   c.GroupBaseDN,
		GroupFilter:   c.GroupFilter,
		UsernameAttr:  c.UsernameAttr,
		EmailAttr:     c.EmailAttr,
		FirstNameAttr: c.FirstNameAttr,
		LastNameAttr:  c.LastNameAttr,
		GroupNameAttr: c.GroupNameAttr,
		Timeout:       c.Timeout,
	}
}

// render renders the login page with the enabled provider flags.
func (s *Service) render(c *fiber.Ctx, errorMessage string) error {
	data := fiber.Map{
		"local_enabled": s.cfg.Auth.Local.Enabled,
		"ldap_enabled":  s.cfg.Auth.LDAP.Enabled,
		"oidc_enabled":  s.cfg.Auth.OIDC.Enabled,
	}

	if errorMessage != "" {
		data["error"] = errorMessage
	}

	return c.Render(TemplateName, data)
}

// Get handles the login page rendering.
func (s *Service) Get(c *fiber.Ctx) error {
	return s.render(c, "")
}

// Post handles the login form submission.
func (s *Service) Post(c *fiber.Ctx) error {
	var in struct {
		Username string `form:"username"`
		Password string `form:"password"`
		AuthType string `form:"auth_type"`
	}

	if err := c.BodyParser(&in); err != nil {
		return s.render(c, ErrInvalidFormData.Error())
	}

	authType, err := s.pickAuthType(in.AuthType)
	if err != nil {
		return s.render(c, err.Error())
	}

	user, err := s.authenticate(authType, in.Username, in.Password)
	if err != nil {
		log.Warn().Err(err).Str("username", in.Username).Str("auth_type", authType).
			Msg("login failed")

		return s.render(c, err.Error())
	}

	sessionID := session.GenerateSessionID()

	userSession := &session.Data{
		User: *user,
	}

	if err = userSession.Write(sessionID, s.cfg.Webserver.Session.ExpiryTime); err != nil {
		log.Error().Err(err).Msg("failed to write session")

		return s.render(c, ErrInternalServerError.Error())
	}

	cookieSettings := &fiber.Cookie{
		Name:     "session",
		Value:    sessionID,
		MaxAge:   int(s.cfg.Webserver.Session.ExpiryTime.Seconds()),
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax", // TODO: make this configurable
	}

	if s.cfg.DevMode {
		cookieSettings.Secure = false
	}

	c.Cookie(cookieSettings)

	return c.Redirect("/dashboard")
}

// pickAuthType decides which provider handles the submitted form. An
// empty requested type falls back to the first enabled provider.
func (s *Service) pickAuthType(requested string) (string, error) {
	switch requested {
	case "":
		if s.cfg.Auth.Local.Enabled {
			return AuthTypeLocal, nil
		}

		if s.cfg.Auth.LDAP.Enabled {
			return AuthTypeLDAP, nil
		}

		return "", ErrNoAuthMethod
	case AuthTypeLocal:
		if !s.cfg.Auth.Local.Enabled || s.localAuth == nil {
			return "", ErrLocalAuthDisabled
		}

		return AuthTypeLocal, nil
	case AuthTypeLDAP:
		if !s.cfg.Auth.LDAP.Enabled || s.ldapAuth == nil {
			return "", ErrLDAPAuthDisabled
		}

		return AuthTypeLDAP, nil
	default:
		return "", ErrInvalidAuthMethod
	}
}

// authenticate runs the selected provider. Credential failures all map
// to the same error so the form can not be used to probe for accounts.
func (s *Service) authenticate(authType, username, password string) (*models.User, error) {
	switch authType {
	case AuthTypeLocal:
		user, err := s.localAuth.Authenticate(username, password)

		switch {
		case errors.Is(err, auth.ErrUserNotFound),
			errors.Is(err, auth.ErrInvalidPassword),
			errors.Is(err, auth.ErrUserAccountDisabled):
			return nil, ErrInvalidCredentials
		case err != nil:
			return nil, ErrInternalServerError
		}

		return user, nil
	case AuthTypeLDAP:
		user, err := s.ldapAuth.Authenticate(username, password)
		if err != nil {
			return nil, ErrInvalidCredentials
		}

		return user, nil
	default:
		return nil, ErrInvalidAuthMethod
	}
}
