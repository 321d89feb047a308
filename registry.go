package bengine

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Category buckets block types for UI layout and engine-mode filtering.
type Category string

const (
	CategoryMedia   Category = "media"
	CategoryText    Category = "text"
	CategoryQuiz    Category = "quiz"
	CategoryUnknown Category = "unknown"
)

func validCategory(c Category) bool {
	switch c {
	case CategoryMedia, CategoryText, CategoryQuiz:
		return true
	}
	return false
}

// ExtAPI is the surface the engine exposes to block definitions.
type ExtAPI struct {
	Alerts      Alerter
	Vars        *VarStore
	EngineID    string
	PagePath    string
	ContentPath string
}

// Extensible defines one block type. Every capability is optional: a nil
// callback means the block does not support that operation, and dispatch
// sites treat it as a first-class case rather than an error.
type Extensible struct {
	Type     string
	Name     string
	Category Category
	Upload   bool   // block content is produced by uploading a file
	Accept   string // MIME pattern for the upload picker, e.g. "image/*"

	// Destroy releases resources held by a rendered block before removal.
	Destroy func(n *Node)
	// FetchDependencies declares scripts/styles needed before first render.
	FetchDependencies func() []Dependency
	// InsertContent renders the editable form of the block into n.
	InsertContent func(n *Node, data BlockData) error
	// AfterDOMInsert receives the asset reference once an upload lands.
	AfterDOMInsert func(n *Node, assetRef string)
	// RunBlock re-activates a rendered block (media players and the like).
	RunBlock func(n *Node) error
	// RunData executes the block during a quiz run, rendering into n, and
	// returns its type-specific result.
	RunData func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error)
	// SaveContent normalizes block data for persistence. Nil means the
	// data is saved as-is.
	SaveContent func(data BlockData) BlockData
	// SaveFile names the asset to bundle with an exported engine file.
	SaveFile func(data BlockData) (string, bool)
	// ShowContent renders the read-only form of the block into n.
	ShowContent func(n *Node, data BlockData) error
	// StyleBlock returns CSS scoped to this block type.
	StyleBlock func() string
}

// Registry is the engine's block catalogue. The base catalogue is fixed at
// construction; synthetic fallbacks for unknown types live in an overlay
// consulted before the base, so the catalogue itself never mutates.
type Registry struct {
	log   *zap.SugaredLogger
	base  map[string]*Extensible
	types []string

	mu      sync.RWMutex
	overlay map[string]*Extensible
	counts  map[Category]int
}

// NewRegistry validates and indexes the given block definitions. A
// definition with an invalid category is fatal; missing capabilities are
// logged and left nil.
func NewRegistry(defs []*Extensible, logger *zap.SugaredLogger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Registry{
		log:     logger,
		base:    make(map[string]*Extensible, len(defs)),
		overlay: make(map[string]*Extensible),
		counts: map[Category]int{
			CategoryMedia:   0,
			CategoryText:    0,
			CategoryQuiz:    0,
			CategoryUnknown: 0,
		},
	}

	for _, def := range defs {
		if def.Type == "" {
			return nil, &RegistryError{Reason: "block definition has no type"}
		}
		if !validCategory(def.Category) {
			return nil, &RegistryError{BlockType: def.Type, Reason: "invalid category in extensibles"}
		}
		if _, dup := r.base[def.Type]; dup {
			return nil, &RegistryError{BlockType: def.Type, Reason: "duplicate block type"}
		}
		r.warnMissing(def)
		r.base[def.Type] = def
		r.types = append(r.types, def.Type)
		r.counts[def.Category]++
	}
	sort.Strings(r.types)
	return r, nil
}

func (r *Registry) warnMissing(def *Extensible) {
	caps := []struct {
		name string
		set  bool
	}{
		{"destroy", def.Destroy != nil},
		{"fetchDependencies", def.FetchDependencies != nil},
		{"insertContent", def.InsertContent != nil},
		{"afterDOMinsert", def.AfterDOMInsert != nil},
		{"runBlock", def.RunBlock != nil},
		{"runData", def.RunData != nil},
		{"saveContent", def.SaveContent != nil},
		{"saveFile", def.SaveFile != nil},
		{"showContent", def.ShowContent != nil},
		{"styleBlock", def.StyleBlock != nil},
	}
	for _, c := range caps {
		if !c.set {
			r.log.Warnf("%s has not implemented method: %s", def.Type, c.name)
		}
	}
}

// Lookup returns the definition for a block type, consulting synthetic
// fallbacks first. It never fabricates one; see Resolve.
func (r *Registry) Lookup(btype string) (*Extensible, bool) {
	r.mu.RLock()
	if def, ok := r.overlay[btype]; ok {
		r.mu.RUnlock()
		return def, true
	}
	r.mu.RUnlock()
	def, ok := r.base[btype]
	return def, ok
}

// Resolve returns the definition for a block type, creating a synthetic
// unknown fallback when the type is not in the catalogue. Only the edit
// path uses this; show and quiz rendering treat unknown types as errors.
func (r *Registry) Resolve(btype string) *Extensible {
	if def, ok := r.Lookup(btype); ok {
		return def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.overlay[btype]; ok {
		return def
	}
	def := unknownExtensible(btype)
	r.overlay[btype] = def
	r.counts[CategoryUnknown]++
	r.log.Warnf("unknown block type %q, substituting placeholder", btype)
	return def
}

// Types lists the base catalogue's block types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

// Counts returns the per-category block type counts, including synthetic
// unknowns resolved so far.
func (r *Registry) Counts() map[Category]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Category]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// unknownExtensible renders an inert placeholder for a type the catalogue
// does not know. Saving one reports empty content, so the original type tag
// survives round trips without its payload.
func unknownExtensible(btype string) *Extensible {
	return &Extensible{
		Type:     btype,
		Name:     btype,
		Category: CategoryUnknown,
		InsertContent: func(n *Node, _ BlockData) error {
			n.SetHTML(`<p class="bengine_unknown_block">unknown block</p>`)
			return nil
		},
		ShowContent: func(n *Node, _ BlockData) error {
			n.SetHTML("unknown block")
			return nil
		},
		SaveContent: func(BlockData) BlockData {
			return BlockData{}
		},
	}
}
