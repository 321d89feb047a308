// Package blocks provides the built-in block catalogue: text, media, and
// quiz block definitions ready to register with an engine.
package blocks

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/bengine/bengine"
)

// Raw HTML must pass through so quiz blocks can inject form inputs.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(ghtml.WithUnsafe()),
)

// Text is the plain writing block. Edit mode is a raw textarea; show mode
// renders the content as markdown after variable resolution.
func Text() *bengine.Extensible {
	return &bengine.Extensible{
		Type:     "text",
		Name:     "text",
		Category: bengine.CategoryText,
		InsertContent: func(n *bengine.Node, data bengine.BlockData) error {
			n.SetHTML(fmt.Sprintf(
				`<textarea class="bengine-x-text" id="%s-input">%s</textarea>`,
				html.EscapeString(n.ID), html.EscapeString(data.Content)))
			return nil
		},
		ShowContent: func(n *bengine.Node, data bengine.BlockData) error {
			resolved := n.API.Vars.Resolve(data.Content)
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(resolved), &buf); err != nil {
				return err
			}
			n.SetHTML(buf.String())
			return nil
		},
		StyleBlock: func() string {
			return ".bengine-x-text{width:100%;min-height:120px;box-sizing:border-box}"
		},
	}
}
