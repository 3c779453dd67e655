package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE sources (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				base_url TEXT,
				subscribed BOOLEAN NOT NULL DEFAULT FALSE,
				last_fetched_latests_at TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				sort_title TEXT NOT NULL DEFAULT '',
				cover_storage_key TEXT,
				unread_chapters INTEGER NOT NULL DEFAULT 0,
				read_through_rank REAL NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE source_works (
				source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
				source_work_id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				url TEXT,
				title TEXT NOT NULL,
				title_accuracy INTEGER NOT NULL DEFAULT 0,
				description TEXT,
				description_accuracy INTEGER NOT NULL DEFAULT 0,
				cover_url TEXT,
				cover_storage_key TEXT,
				book_id INTEGER REFERENCES books(id) ON DELETE SET NULL,
				PRIMARY KEY (source_id, source_work_id)
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Index for the sync pass (works still missing a canonical book).
		_, err = db.Exec(`CREATE INDEX ix_source_works_book_id ON source_works(book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE chapters (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				source_id TEXT NOT NULL,
				source_work_id TEXT NOT NULL,
				native_id TEXT NOT NULL,
				rank REAL NOT NULL,
				title TEXT,
				url TEXT,
				published_at TIMESTAMPTZ,
				published_at_accuracy INTEGER NOT NULL DEFAULT 0,
				pages TEXT,
				FOREIGN KEY (source_id, source_work_id) REFERENCES source_works(source_id, source_work_id) ON DELETE CASCADE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Chapter identity: one row per native id within a source work.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_chapters_native ON chapters(source_id, source_work_id, native_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_chapters_rank ON chapters(source_id, source_work_id, rank)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE fetch_sessions (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				user_agent TEXT,
				cookies TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE cache_entries (
				key TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				body TEXT,
				status_code INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE settings (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				fetch_interval BIGINT NOT NULL,
				min_refetch_delay BIGINT NOT NULL,
				retry_backoff_base BIGINT NOT NULL,
				solver_url TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Seed the global settings row: tick every 10 minutes, refetch a
		// source at most hourly, 30 minute backoff base.
		_, err = db.Exec(`
			INSERT INTO settings (id, fetch_interval, min_refetch_delay, retry_backoff_base, solver_url)
			VALUES (1, 600000000000, 3600000000000, 1800000000000, '')
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"settings", "cache_entries", "fetch_sessions", "chapters", "source_works", "books", "sources"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
