// Package daemon wires the database, session storage and web service
// together into the running application.
package daemon

import (
	"fmt"

	"github.com/gofiber/storage"
	"github.com/gofiber/storage/memory"
	sessionmysql "github.com/gofiber/storage/mysql"
	sessionpostgres "github.com/gofiber/storage/postgres"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/dsn"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web"
	websess "github.com/tempora-app/tempora/internal/web/session"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start runs the Daemon's web service until a shutdown signal arrives.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db, err := gorm.Open(openDialector(cfg), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
		return nil
	}

	if err = db.AutoMigrate(
		&models.Role{},
		&models.RolePermission{},
		&models.User{},
		&models.Setting{},
		&models.GroupMapping{},
		&models.TimeEntry{},
		&models.Notification{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
		return nil
	}

	catalog := rbac.DefaultCatalog()

	seed(cfg, db, catalog)

	websess.Init(sessionStorage(cfg))

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, catalog),
	}
}

// openDialector selects the gorm driver for the configured engine.
// Anything other than mysql or postgres falls back to the embedded
// sqlite driver, which keeps single-host deployments dependency free.
func openDialector(cfg *config.Config) gorm.Dialector {
	switch cfg.DB.GormEngine {
	case "mysql":
		return gormmysql.Open(dsn.Create(cfg))
	case "postgres":
		return gormpostgres.Open(dsn.CreatePostgres(cfg))
	default:
		return sqlite.Open(cfg.DB.Name)
	}
}

// sessionStorage picks a fiber storage backend matching the database
// engine so sessions survive restarts on mysql and postgres. The
// sqlite fallback keeps sessions in memory.
func sessionStorage(cfg *config.Config) storage.Storage {
	switch cfg.DB.GormEngine {
	case "mysql":
		return sessionmysql.New(sessionmysql.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         "sessions",
		})
	case "postgres":
		return sessionpostgres.New(sessionpostgres.Config{
			ConnectionURI: dsn.CreatePostgres(cfg),
			Table:         "sessions",
		})
	default:
		return memory.New()
	}
}
