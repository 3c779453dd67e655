package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kumoreads/kumo/pkg/config"
	"github.com/kumoreads/kumo/pkg/database"
	"github.com/kumoreads/kumo/pkg/fetchcache"
	"github.com/kumoreads/kumo/pkg/fetchsession"
	"github.com/kumoreads/kumo/pkg/ingest"
	"github.com/kumoreads/kumo/pkg/migrations"
	"github.com/kumoreads/kumo/pkg/pictures"
	"github.com/kumoreads/kumo/pkg/scheduler"
	"github.com/kumoreads/kumo/pkg/server"
	"github.com/kumoreads/kumo/pkg/settings"
	"github.com/kumoreads/kumo/pkg/sources"
	"github.com/kumoreads/kumo/pkg/sources/madara"
	"github.com/kumoreads/kumo/pkg/unread"
	"github.com/kumoreads/kumo/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting kumo", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initDataDir(cfg.DataDirectory); err != nil {
		log.Err(err).Fatal("data directory error")
	}
	log.Info("data directory initialized", logger.Data{"path": cfg.DataDirectory})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	// The settings row configures fetch cadence and the challenge solver.
	// Its absence means the migrations didn't seed it, so refuse to start.
	setting, err := settings.NewService(db).Retrieve(ctx)
	if err != nil {
		log.Err(err).Fatal("settings error")
	}

	registry := sources.NewRegistry()
	for _, adapter := range []sources.Adapter{
		madara.New("manhuaplus", "ManhuaPlus", "https://manhuaplus.com"),
		madara.New("toonily", "Toonily", "https://toonily.com"),
	} {
		if err := registry.Register(adapter); err != nil {
			log.Err(err).Fatal("adapter registration error")
		}
	}
	if err := sources.NewService(db).SyncRegistry(ctx, registry); err != nil {
		log.Err(err).Fatal("source sync error")
	}

	var solver fetchsession.Solver
	if setting.SolverURL != "" {
		solver = fetchsession.NewHTTPSolver(setting.SolverURL, &http.Client{Timeout: cfg.SolverTimeout})
	} else {
		log.Warn("no solver url configured, challenge-protected sources will fail")
	}

	sessions := fetchsession.NewManager(db, fetchcache.NewService(db), solver, &http.Client{Timeout: 30 * time.Second})
	uploader := pictures.NewLocalUploader(cfg.DataDirectory)
	ingestService := ingest.NewService(db, unread.NewService(db), pictures.NewService(db, sessions, uploader))
	runner := sources.NewRunner(db, registry, sessions, ingestService)

	sched := scheduler.New(cfg, db, registry, runner)

	srv, err := server.New(cfg, db, registry, runner, sched)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		log.Info("server started", logger.Data{"port": listener.Addr().(*net.TCPAddr).Port})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	sched.Start()
	log.Info("scheduler started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	sched.Shutdown()
	log.Info("scheduler shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initDataDir creates the image storage directories and verifies write
// permissions.
func initDataDir(dir string) error {
	subdirs := []string{
		filepath.Join(dir, "covers"),
		filepath.Join(dir, "pages"),
	}

	for _, subdir := range subdirs {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create data directory: %s", subdir)
		}
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "data directory is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
