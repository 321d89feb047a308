// Package store persists pages as temp and permanent copies. Tab id 0 is
// the temp table the editor autosaves into; tab id 1 is the published copy
// revert restores from.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bengine/bengine"
)

// ErrNotFound marks a missing page; the serving layer maps it to 404.
var ErrNotFound = errors.New("page not found")

// Page is one stored copy of a page's blocks.
type Page struct {
	Path    string
	TabID   int
	Types   []string
	Content []bengine.BlockData
}

// Store is the page persistence interface the server depends on.
type Store interface {
	SavePage(ctx context.Context, p Page) error
	LoadPage(ctx context.Context, path string, tabID int) (Page, error)
	// Revert copies the permanent page over the temp one and returns the
	// permanent copy. A page with no permanent copy reverts to empty.
	Revert(ctx context.Context, path string) (Page, error)
	Close() error
}

// SQLStore runs on database/sql with either the sqlite or postgres
// driver; the statements are written to work on both.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

// NewSQLStore wraps an opened database and ensures the schema exists.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS pages (
		path TEXT NOT NULL,
		tabid INTEGER NOT NULL,
		types_json TEXT NOT NULL,
		content_json TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (path, tabid)
	)`)
	if err != nil {
		return fmt.Errorf("creating pages table: %w", err)
	}
	return nil
}

func (s *SQLStore) SavePage(ctx context.Context, p Page) error {
	tj, err := json.Marshal(p.Types)
	if err != nil {
		return err
	}
	cj, err := json.Marshal(p.Content)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pages (path,tabid,types_json,content_json,updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (path,tabid) DO UPDATE SET types_json=EXCLUDED.types_json, content_json=EXCLUDED.content_json, updated_at=EXCLUDED.updated_at`,
		p.Path, p.TabID, string(tj), string(cj), time.Now().Unix())
	return err
}

func (s *SQLStore) LoadPage(ctx context.Context, path string, tabID int) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT types_json, content_json FROM pages WHERE path=$1 AND tabid=$2`, path, tabID)
	var tj, cj string
	if err := row.Scan(&tj, &cj); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, ErrNotFound
		}
		return Page{}, err
	}
	p := Page{Path: path, TabID: tabID}
	if err := json.Unmarshal([]byte(tj), &p.Types); err != nil {
		return Page{}, err
	}
	if err := json.Unmarshal([]byte(cj), &p.Content); err != nil {
		return Page{}, err
	}
	return p, nil
}

func (s *SQLStore) Revert(ctx context.Context, path string) (Page, error) {
	perm, err := s.LoadPage(ctx, path, bengine.TablePerm)
	if errors.Is(err, ErrNotFound) {
		// no published copy: the temp work is discarded entirely
		if _, derr := s.db.ExecContext(ctx,
			`DELETE FROM pages WHERE path=$1 AND tabid=$2`, path, bengine.TableTemp); derr != nil {
			return Page{}, derr
		}
		return Page{Path: path, TabID: bengine.TablePerm}, nil
	}
	if err != nil {
		return Page{}, err
	}

	temp := perm
	temp.TabID = bengine.TableTemp
	if err := s.SavePage(ctx, temp); err != nil {
		return Page{}, err
	}
	return perm, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
