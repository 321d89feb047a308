package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the content directory and reports page document
// changes so connected editors can reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	onChange func(pagePath string) error
	done     chan struct{}
	log      *zap.SugaredLogger
}

// NewWatcher creates a recursive watcher over rootDir. onChange
// receives the page path (the directory holding the changed document,
// relative to rootDir).
func NewWatcher(rootDir string, onChange func(string) error, logger *zap.SugaredLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		onChange: onChange,
		done:     make(chan struct{}),
		log:      logger,
	}

	if err := w.addRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return w.watcher.Add(filepath.Dir(dir))
			}
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start begins dispatching events.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != contentDocName {
					// New directories need to be added to keep the
					// watch recursive.
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						w.watcher.Add(event.Name)
					}
					continue
				}
				rel, err := filepath.Rel(w.rootDir, filepath.Dir(event.Name))
				if err != nil {
					rel = filepath.Dir(event.Name)
				}
				page := filepath.ToSlash(rel)
				w.log.Infow("page document changed", "page", page)
				if err := w.onChange(page); err != nil {
					w.log.Errorw("change notification failed", "page", page, "error", err)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warnw("watch error", "error", err)

			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
