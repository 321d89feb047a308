// Package assets manages uploaded media and page asset resolution on
// the server side. Uploads land under <contentDir>/<fpath>/assets/ and
// are served back as /content/ references. Remote files named by a
// page are fetched into the same directory so pages stay self-hosted.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const contentPrefix = "/content/"

// Manager owns the on-disk asset tree for a content directory.
type Manager struct {
	contentDir string
	client     *http.Client
	conv       Converter
	log        *zap.SugaredLogger

	retries   int
	baseDelay time.Duration
}

// NewManager returns a Manager rooted at contentDir. A nil converter
// stores uploads as-is.
func NewManager(contentDir string, conv Converter, logger *zap.SugaredLogger) *Manager {
	if conv == nil {
		conv = PassthroughConverter{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		contentDir: contentDir,
		client:     &http.Client{Timeout: 30 * time.Second},
		conv:       conv,
		log:        logger,
		retries:    3,
		baseDelay:  100 * time.Millisecond,
	}
}

// assetDir returns the on-disk assets directory for a page path,
// creating it if needed.
func (m *Manager) assetDir(fpath string) (string, error) {
	dir := filepath.Join(m.contentDir, filepath.FromSlash(cleanPagePath(fpath)), "assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating asset directory: %w", err)
	}
	return dir, nil
}

// assetRef returns the public /content/ reference for a stored asset.
func assetRef(fpath, name string) string {
	return contentPrefix + path.Join(cleanPagePath(fpath), "assets", name)
}

// cleanPagePath strips surrounding slashes and any path traversal from
// a client-supplied page path.
func cleanPagePath(fpath string) string {
	fpath = strings.Trim(fpath, "/")
	clean := path.Clean("/" + fpath)
	return strings.TrimPrefix(clean, "/")
}

// sanitizeName reduces a client-supplied file name to its base name so
// uploads cannot escape the assets directory.
func sanitizeName(name string) string {
	name = filepath.Base(filepath.FromSlash(name))
	name = strings.ReplaceAll(name, string(filepath.Separator), "")
	if name == "." || name == ".." || name == "" {
		return "file"
	}
	return name
}

// SaveUpload stores one uploaded media file for a page and runs it
// through the converter. Conversion progress is reported through
// progress as integer percentages; the returned string is the public
// asset reference for the stored file.
func (m *Manager) SaveUpload(ctx context.Context, fpath, btype, name string, r io.Reader, progress func(pct int)) (string, error) {
	dir, err := m.assetDir(fpath)
	if err != nil {
		return "", err
	}
	name = sanitizeName(name)

	raw := filepath.Join(dir, name)
	f, err := os.Create(raw)
	if err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(raw)
		return "", fmt.Errorf("storing upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(raw)
		return "", fmt.Errorf("storing upload: %w", err)
	}

	final, err := m.conv.Convert(ctx, raw, btype, progress)
	if err != nil {
		os.Remove(raw)
		return "", err
	}
	if final != raw {
		os.Remove(raw)
	}
	m.log.Infow("stored upload", "path", fpath, "type", btype, "file", filepath.Base(final))
	return assetRef(fpath, filepath.Base(final)), nil
}

// Request names the files a page needs resolved into its asset
// directory. Values are either bare file names expected to already
// exist, or http(s) URLs to fetch.
type Request struct {
	Files     map[string]string `json:"files"`
	Namespace string            `json:"namespace"`
	FPath     string            `json:"fpath"`
}

// UnresolvedError reports the first file in a batch that could not be
// resolved. Resolution is all-or-nothing.
type UnresolvedError struct {
	Name   string
	Reason string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("could not resolve %q: %s", e.Name, e.Reason)
}

// Resolve checks every named file and fetches remote ones, returning a
// map from the request key to the public asset reference. Any failure
// fails the whole batch.
func (m *Manager) Resolve(ctx context.Context, req Request) (map[string]string, error) {
	dir, err := m.assetDir(req.FPath)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string, len(req.Files))
	for key, val := range req.Files {
		if strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
			name := sanitizeName(path.Base(val))
			dest := filepath.Join(dir, name)
			if _, statErr := os.Stat(dest); statErr != nil {
				if err := m.fetch(ctx, val, dest); err != nil {
					return nil, &UnresolvedError{Name: val, Reason: err.Error()}
				}
			}
			refs[key] = assetRef(req.FPath, name)
			continue
		}

		name := sanitizeName(val)
		if _, statErr := os.Stat(filepath.Join(dir, name)); statErr != nil {
			return nil, &UnresolvedError{Name: val, Reason: "file does not exist"}
		}
		refs[key] = assetRef(req.FPath, name)
	}
	return refs, nil
}

// fetch downloads url to dest with exponential backoff. Only 5xx
// responses and transport errors are retried.
func (m *Manager) fetch(ctx context.Context, url, dest string) error {
	var lastErr error
	delay := m.baseDelay

	for attempt := 0; attempt <= m.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		err := m.fetchOnce(ctx, url, dest)
		if err == nil {
			if attempt > 0 {
				m.log.Infow("fetch succeeded after retry", "url", url, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		m.log.Warnw("fetch failed, retrying", "url", url, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func retryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.code >= 500
	}
	return true
}

func (m *Manager) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}
