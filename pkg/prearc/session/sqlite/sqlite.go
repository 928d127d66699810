// Package sqlite implements the staging-session store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
	"github.com/vuiis/prearc/pkg/prearc/session"
)

// timeLayout is fixed-width so the TEXT comparison in TouchLastBuilt orders
// chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// Open opens the pre-archive session database with WAL mode enabled, creating
// the schema if needed.
func Open(ctx context.Context, path string) (session.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL lets concurrent receive workers read while one writes
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS prearc_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL DEFAULT '',
	folder_name TEXT NOT NULL,
	name TEXT,
	timestamp TEXT NOT NULL,
	study_tag TEXT NOT NULL,
	modality TEXT,
	status TEXT NOT NULL,
	subject TEXT,
	visit TEXT,
	scan_date TEXT,
	last_built_at TEXT NOT NULL,
	prevent_anon INTEGER NOT NULL DEFAULT 0,
	prevent_auto_commit INTEGER NOT NULL DEFAULT 0,
	source TEXT,
	url TEXT,
	archive_mode TEXT,
	UNIQUE(project, study_tag)
);

CREATE INDEX IF NOT EXISTS idx_prearc_sessions_folder
	ON prearc_sessions(folder_name, timestamp, project);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

const sessionColumns = `project, folder_name, name, timestamp, study_tag, modality, status,
	subject, visit, scan_date, last_built_at, prevent_anon, prevent_auto_commit,
	source, url, archive_mode`

func (s *sqliteStore) GetOrCreate(ctx context.Context, initial session.Data) (session.GetOrCreateResult, error) {
	existing, found, err := s.Get(ctx, initial.Key())
	if err != nil {
		return session.GetOrCreateResult{}, err
	}
	if found {
		return session.GetOrCreateResult{Session: existing, Created: false}, nil
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO prearc_sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		initial.Project, initial.FolderName, initial.Name, initial.Timestamp,
		initial.StudyTag, initial.Modality, string(initial.Status),
		initial.Subject, initial.Visit, initial.ScanDate,
		initial.LastBuiltAt.UTC().Format(timeLayout),
		boolInt(initial.PreventAnon), boolInt(initial.PreventAutoCommit),
		initial.Source, initial.URL, initial.ArchiveMode)
	if err != nil {
		// Another receive worker can win the insert race; the unique
		// constraint makes that loser re-read the winner's row.
		if strings.Contains(err.Error(), "UNIQUE") {
			existing, found, gerr := s.Get(ctx, initial.Key())
			if gerr == nil && found {
				return session.GetOrCreateResult{Session: existing, Created: false}, nil
			}
		}
		return session.GetOrCreateResult{}, fmt.Errorf("create session: %w", err)
	}
	return session.GetOrCreateResult{Session: initial, Created: true}, nil
}

func (s *sqliteStore) TouchLastBuilt(ctx context.Context, sess session.Data) error {
	now := time.Now().UTC()
	cutoff := now.Add(-session.TouchInterval)
	_, err := s.db.ExecContext(ctx, `
UPDATE prearc_sessions SET last_built_at = ?
WHERE folder_name = ? AND timestamp = ? AND project = ? AND last_built_at < ?`,
		now.Format(timeLayout),
		sess.FolderName, sess.Timestamp, sess.Project,
		cutoff.Format(timeLayout))
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, folderName, timestamp, projectID string) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM prearc_sessions WHERE folder_name = ? AND timestamp = ? AND project = ?`,
		folderName, timestamp, projectID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return internalerr.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key session.Key) (session.Data, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+sessionColumns+` FROM prearc_sessions WHERE project = ? AND study_tag = ?`,
		key.Project, key.StudyTag)
	d, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Data{}, false, nil
	}
	if err != nil {
		return session.Data{}, false, err
	}
	return d, true, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]session.Data, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+` FROM prearc_sessions ORDER BY timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Data
	for rows.Next() {
		d, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (session.Data, error) {
	var (
		d                       session.Data
		status, lastBuilt       string
		preventAnon, preventCmt int
		name, modality, subject sql.NullString
		visit, scanDate, source sql.NullString
		url, archiveMode        sql.NullString
	)
	err := row.Scan(&d.Project, &d.FolderName, &name, &d.Timestamp, &d.StudyTag,
		&modality, &status, &subject, &visit, &scanDate, &lastBuilt,
		&preventAnon, &preventCmt, &source, &url, &archiveMode)
	if err != nil {
		return session.Data{}, err
	}
	d.Name = name.String
	d.Modality = modality.String
	d.Status = session.Status(status)
	d.Subject = subject.String
	d.Visit = visit.String
	d.ScanDate = scanDate.String
	d.PreventAnon = preventAnon != 0
	d.PreventAutoCommit = preventCmt != 0
	d.Source = source.String
	d.URL = url.String
	d.ArchiveMode = archiveMode.String
	if d.LastBuiltAt, err = time.Parse(timeLayout, lastBuilt); err != nil {
		return session.Data{}, fmt.Errorf("bad last_built_at %q: %w", lastBuilt, err)
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
