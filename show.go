package bengine

import (
	"context"
	"fmt"
	"sync"
)

// Show renders a page read-only. No editing affordances exist here: the
// surface is a straight projection of the loaded page data, optionally one
// block at a time.
type Show struct {
	mu sync.Mutex

	e          *Engine
	list       *BlockList
	surface    *Surface
	depsLoaded map[string]bool
}

// NewShow creates the read-only controller for this engine's page.
func (e *Engine) NewShow() *Show {
	return &Show{
		e:          e,
		list:       NewBlockList(e.opts.BlockLimit),
		depsLoaded: make(map[string]bool),
	}
}

// Load initializes show mode from inline page data or the stored document.
// A block type the catalogue does not know aborts the render: show mode
// never substitutes placeholders.
func (s *Show) Load(ctx context.Context, inline PageData) error {
	pd := inline
	if len(pd) == 0 && s.e.pagePath != "" && !s.e.opts.LocalMode && s.e.gateway != nil {
		fetched, err := s.e.gateway.FetchContent(ctx, s.e.pagePath)
		if err != nil {
			s.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
			return err
		}
		pd = fetched
	}

	blocks, err := BlocksFromPageData(pd)
	if err != nil {
		return err
	}
	s.list.Reset(blocks)

	s.e.loadDependencies(ctx, s.depsLoaded)
	return s.render()
}

func (s *Show) render() error {
	sfc := newSurface(s.e.id, s.e.opts.EnableSingleView)
	api := s.e.api()
	for i, b := range s.list.Blocks() {
		def, ok := s.e.registry.Lookup(b.Type)
		if !ok || def.ShowContent == nil {
			s.e.alerts.Alert("Missing Block Dependency: " + b.Type + ". Check Console For More Information")
			return &CapabilityError{BlockType: b.Type, Capability: "showContent"}
		}
		n := sfc.node(i+1, b.Type, api)
		if err := def.ShowContent(n, b.Data); err != nil {
			s.e.alerts.Alert("Missing Block Dependency: " + b.Type + ". Check Console For More Information")
			return err
		}
		if def.AfterDOMInsert != nil {
			def.AfterDOMInsert(n, "")
		}
	}
	s.mu.Lock()
	s.surface = sfc
	s.mu.Unlock()
	return nil
}

// Surface returns the render surface.
func (s *Show) Surface() *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

// Next advances single view to the following block.
func (s *Show) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return false
	}
	return s.surface.Advance()
}

// Prev moves single view back to the previous block.
func (s *Show) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return false
	}
	return s.surface.Rewind()
}

// StyleSheet returns the block-scoped CSS for the types on the page.
func (s *Show) StyleSheet() string {
	return styleSheet(s.e.registry, s.list.Blocks())
}
