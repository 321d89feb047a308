// Package bengine implements a content-block engine: it parses the Njn
// block text format into an ordered block model, renders blocks for editing
// or read-only display, runs a step-driven quiz flow, and persists block
// content through an HTTP persistence gateway.
package bengine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine modes. The mode decides which block categories an exported engine
// file may contain.
const (
	ModeBengine = "bengine"
	ModeQengine = "qengine"
)

// Log levels passed to Alerter.Log.
const (
	LevelLog   = "log"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Options configures an Engine. The zero value of each field falls back to
// the documented default.
type Options struct {
	BlockLimit         int    // maximum blocks per page, default 16
	DefaultText        *bool  // start empty pages with a text block, default true
	EnableAutoSave     bool   // temp-save after every structural edit
	EnableSingleView   bool   // show mode renders one block at a time
	LocalMode          bool   // skip the persistence gateway entirely
	MediaLimit         int64  // upload size ceiling in megabytes, default 100
	Mode               string // ModeBengine or ModeQengine, default ModeBengine
	PlayableMediaLimit int    // audio/video duration ceiling in seconds, default 180

	// Polling budgets. Zero values use the defaults the quiz runner and
	// dependency loader were tuned with.
	CompletionTries    int           // default 100
	CompletionInterval time.Duration // default 50ms
	DependencyTries    int           // default 100
	DependencyInterval time.Duration // default 100ms
}

func (o Options) withDefaults() Options {
	if o.BlockLimit <= 0 {
		o.BlockLimit = 16
	}
	if o.DefaultText == nil {
		t := true
		o.DefaultText = &t
	}
	if o.MediaLimit <= 0 {
		o.MediaLimit = 100
	}
	if o.Mode == "" {
		o.Mode = ModeBengine
	}
	if o.PlayableMediaLimit <= 0 {
		o.PlayableMediaLimit = 180
	}
	if o.CompletionTries <= 0 {
		o.CompletionTries = 100
	}
	if o.CompletionInterval <= 0 {
		o.CompletionInterval = 50 * time.Millisecond
	}
	if o.DependencyTries <= 0 {
		o.DependencyTries = 100
	}
	if o.DependencyInterval <= 0 {
		o.DependencyInterval = 100 * time.Millisecond
	}
	return o
}

// MediaLimitBytes returns the upload size ceiling in bytes.
func (o Options) MediaLimitBytes() int64 {
	return o.MediaLimit * 1048576
}

// Alerter is the user-notification collaborator. The engine never renders
// its own alert UI; embedders provide one, or the zap-backed default is
// used, which only logs.
type Alerter interface {
	Alert(msg string)
	Confirm(msg string) bool
	Log(msg, level string)
}

// Display is the progress/status collaborator used by save and upload. The
// default implementation discards everything, matching an embedder that
// has no status area.
type Display interface {
	ProgressInitialize(label string, total int64)
	ProgressUpdate(value int64)
	ProgressFinalize(label string, total int64)
	UpdateSaveStatus(status string)
}

// DependencyLoader materializes script/style dependencies declared by block
// definitions. Ready reports whether the named symbol is available; the
// engine polls it with a bounded budget.
type DependencyLoader interface {
	Load(dep Dependency) error
	Ready(symbol string) bool
}

// Dependency is a script or style a block definition needs before it can
// render.
type Dependency struct {
	Source    string // URL or path
	Kind      string // "script" or "style"
	Integrity string // optional subresource integrity hash
	Wait      string // symbol to poll for before proceeding, empty to skip
}

// MediaProber reports the playable duration of an uploaded media file.
// Implementations that cannot probe should return ok=false, which skips
// the duration gate.
type MediaProber interface {
	Duration(name string, data []byte) (seconds float64, ok bool)
}

// Engine ties the block catalogue, the variable store, the block list, and
// the persistence gateway together. One Engine drives one embedded page.
type Engine struct {
	opts     Options
	alerts   Alerter
	display  Display
	loader   DependencyLoader
	prober   MediaProber
	gateway  *Gateway
	registry *Registry
	vars     *VarStore
	log      *zap.SugaredLogger

	id          string // engine instance id, part of every node id
	pagePath    string
	contentPath string
}

// Config carries the collaborators for New. Nil fields get defaults.
type Config struct {
	Options  Options
	Registry *Registry
	Alerts   Alerter
	Display  Display
	Loader   DependencyLoader
	Prober   MediaProber
	Gateway  *Gateway
	Logger   *zap.SugaredLogger
}

// New creates an Engine for the page at pagePath. The registry is
// required; everything else defaults.
func New(pagePath string, cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, &RegistryError{Reason: "engine requires a block registry"}
	}
	logger := cfg.Logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		logger = l.Sugar()
	}
	alerts := cfg.Alerts
	if alerts == nil {
		alerts = &logAlerter{log: logger}
	}
	display := cfg.Display
	if display == nil {
		display = nopDisplay{}
	}

	e := &Engine{
		opts:        cfg.Options.withDefaults(),
		alerts:      alerts,
		display:     display,
		loader:      cfg.Loader,
		prober:      cfg.Prober,
		gateway:     cfg.Gateway,
		registry:    cfg.Registry,
		log:         logger,
		id:          uuid.NewString(),
		pagePath:    pagePath,
		contentPath: "/content/",
	}
	e.vars = NewVarStore(alerts)
	return e, nil
}

// ID returns the engine instance id used to namespace render node ids.
func (e *Engine) ID() string { return e.id }

// Vars exposes the engine's variable store.
func (e *Engine) Vars() *VarStore { return e.vars }

// Registry exposes the engine's block catalogue.
func (e *Engine) Registry() *Registry { return e.registry }

// Options returns the effective options after defaulting.
func (e *Engine) Options() Options { return e.opts }

// logAlerter is the default Alerter: alerts and confirms are logged, and
// confirms auto-accept so non-interactive embedders are never stuck.
type logAlerter struct {
	log *zap.SugaredLogger
}

func (a *logAlerter) Alert(msg string) {
	a.log.Warnw("alert", "msg", msg)
}

func (a *logAlerter) Confirm(msg string) bool {
	a.log.Infow("confirm auto-accepted", "msg", msg)
	return true
}

func (a *logAlerter) Log(msg, level string) {
	switch level {
	case LevelError:
		a.log.Error(msg)
	case LevelWarn:
		a.log.Warn(msg)
	default:
		a.log.Info(msg)
	}
}

type nopDisplay struct{}

func (nopDisplay) ProgressInitialize(string, int64) {}
func (nopDisplay) ProgressUpdate(int64)             {}
func (nopDisplay) ProgressFinalize(string, int64)   {}
func (nopDisplay) UpdateSaveStatus(string)          {}
