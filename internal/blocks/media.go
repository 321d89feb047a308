package blocks

import (
	"fmt"
	"html"
	"strings"

	"github.com/bengine/bengine"
)

// mediaDef builds an upload-backed block whose content is the asset
// reference the backend assigned.
func mediaDef(btype, accept, markupFmt string) *bengine.Extensible {
	return &bengine.Extensible{
		Type:     btype,
		Name:     btype,
		Category: bengine.CategoryMedia,
		Upload:   true,
		Accept:   accept,
		InsertContent: func(n *bengine.Node, data bengine.BlockData) error {
			if data.Content == "" {
				n.SetHTML(fmt.Sprintf(`<p class="bengine-x-pending">uploading %s...</p>`, btype))
				return nil
			}
			n.SetHTML(fmt.Sprintf(markupFmt, html.EscapeString(data.Content)))
			return nil
		},
		AfterDOMInsert: func(n *bengine.Node, assetRef string) {
			if assetRef == "" {
				return
			}
			n.SetHTML(fmt.Sprintf(markupFmt, html.EscapeString(assetRef)))
		},
		ShowContent: func(n *bengine.Node, data bengine.BlockData) error {
			ref, ok := resolveRef(n, data.Content)
			if !ok {
				return fmt.Errorf("%s block has no asset", btype)
			}
			n.SetHTML(fmt.Sprintf(markupFmt, html.EscapeString(ref)))
			return nil
		},
		SaveFile: func(data bengine.BlockData) (string, bool) {
			// variable references are resolved at render, not bundled
			if data.Content == "" || strings.HasPrefix(data.Content, "@@") {
				return "", false
			}
			return data.Content, true
		},
	}
}

// resolveRef passes @@namespace.key@@ references through the variable
// store; anything else is already a served path.
func resolveRef(n *bengine.Node, content string) (string, bool) {
	if content == "" {
		return "", false
	}
	resolved := n.API.Vars.Resolve(content)
	if resolved == "" {
		return "", false
	}
	return resolved, true
}

// Image embeds an uploaded picture.
func Image() *bengine.Extensible {
	return mediaDef("image", "image/*", `<img class="bengine-x-image" src="%s">`)
}

// Audio embeds an uploaded audio file, subject to the playable duration
// ceiling at upload time.
func Audio() *bengine.Extensible {
	return mediaDef("audio", "audio/*", `<audio class="bengine-x-audio" controls src="%s"></audio>`)
}

// Video embeds an uploaded video file, subject to the playable duration
// ceiling at upload time.
func Video() *bengine.Extensible {
	return mediaDef("video", "video/*", `<video class="bengine-x-video" controls src="%s"></video>`)
}
