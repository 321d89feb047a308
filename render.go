package bengine

import (
	"fmt"
	"html"
	"strings"
)

// Node is the render target one block definition writes its markup into.
// Nodes are created by a render pass and thrown away by the next one; the
// block list, not the node tree, is the source of truth.
type Node struct {
	ID   string // "bengine-a-<engine id>-<position>"
	Type string
	API  *ExtAPI

	html string
}

// SetHTML replaces the node's markup.
func (n *Node) SetHTML(markup string) { n.html = markup }

// HTML returns the node's markup.
func (n *Node) HTML() string { return n.html }

// Surface is one render pass over the block list: an ordered node
// projection plus the assembled page markup. Editing operations rebuild
// the surface rather than patching it.
type Surface struct {
	EngineID string
	Nodes    []*Node

	singleView bool
	visible    int // 1-based position shown in single view, 0 when empty
}

func newSurface(engineID string, singleView bool) *Surface {
	return &Surface{EngineID: engineID, singleView: singleView}
}

// node allocates the render target for the block at a 1-based position.
func (s *Surface) node(pos int, btype string, api *ExtAPI) *Node {
	n := &Node{
		ID:   fmt.Sprintf("bengine-a-%s-%d", s.EngineID, pos),
		Type: btype,
		API:  api,
	}
	s.Nodes = append(s.Nodes, n)
	if s.visible == 0 {
		s.visible = 1
	}
	return n
}

// Visible returns the 1-based position shown in single view, or 0 when the
// surface is empty.
func (s *Surface) Visible() int { return s.visible }

// Advance moves single view forward, reporting whether it moved.
func (s *Surface) Advance() bool {
	if !s.singleView || s.visible >= len(s.Nodes) {
		return false
	}
	s.visible++
	return true
}

// Rewind moves single view backward, reporting whether it moved.
func (s *Surface) Rewind() bool {
	if !s.singleView || s.visible <= 1 {
		return false
	}
	s.visible--
	return true
}

// HTML assembles the page markup. In single view only the visible block is
// emitted; otherwise every block appears in order.
func (s *Surface) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="bengine-instance" id="bengine-instance-%s">`, html.EscapeString(s.EngineID))
	for i, n := range s.Nodes {
		if s.singleView && i+1 != s.visible {
			continue
		}
		fmt.Fprintf(&b, `<div class="bengine-block" id="%s" data-btype="%s">`,
			html.EscapeString(n.ID), html.EscapeString(n.Type))
		b.WriteString(n.html)
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// styleSheet collects block-scoped CSS from the definitions in use, once
// per type.
func styleSheet(reg *Registry, blocks []*Block) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, blk := range blocks {
		if seen[blk.Type] {
			continue
		}
		seen[blk.Type] = true
		def, ok := reg.Lookup(blk.Type)
		if !ok || def.StyleBlock == nil {
			continue
		}
		b.WriteString(def.StyleBlock())
	}
	return b.String()
}
