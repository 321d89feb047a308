package bengine

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

// EditorState tracks where the controller is in its lifecycle.
type EditorState string

const (
	EditorUninitialized EditorState = "uninitialized"
	EditorLoading       EditorState = "loading"
	EditorReady         EditorState = "ready"
	EditorUploading     EditorState = "uploading"
	EditorSaving        EditorState = "saving"
)

// Editor drives a page in edit mode: it owns the block list, projects it
// onto a render surface, and talks to the persistence gateway. One editor
// per engine instance.
type Editor struct {
	mu sync.Mutex

	e       *Engine
	list    *BlockList
	surface *Surface
	state   EditorState
	unsaved bool

	// xid/pagetype identify the page to the revert endpoint.
	xid      string
	pagetype string

	depsLoaded map[string]bool
}

// NewEditor creates the edit controller for this engine's page. xid and
// pagetype identify the page to the revert endpoint.
func (e *Engine) NewEditor(xid, pagetype string) *Editor {
	return &Editor{
		e:          e,
		list:       NewBlockList(e.opts.BlockLimit),
		state:      EditorUninitialized,
		xid:        xid,
		pagetype:   pagetype,
		depsLoaded: make(map[string]bool),
	}
}

// State returns the controller state.
func (ed *Editor) State() EditorState {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.state
}

// Unsaved reports whether edits exist that have not been permanently saved.
func (ed *Editor) Unsaved() bool {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.unsaved
}

// List returns the editor's block list.
func (ed *Editor) List() *BlockList { return ed.list }

// Surface returns the latest render surface.
func (ed *Editor) Surface() *Surface {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.surface
}

// Load initializes the editor. Inline page data wins when present;
// otherwise the stored document is fetched, with 404 meaning a new empty
// page. Unknown block types are substituted with placeholders at render.
func (ed *Editor) Load(ctx context.Context, inline PageData) error {
	ed.mu.Lock()
	ed.state = EditorLoading
	ed.mu.Unlock()

	pd := inline
	if len(pd) == 0 && ed.e.pagePath != "" && !ed.e.opts.LocalMode && ed.e.gateway != nil {
		fetched, err := ed.e.gateway.FetchContent(ctx, ed.e.pagePath)
		if err != nil {
			ed.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
			ed.setState(EditorUninitialized)
			return err
		}
		pd = fetched
	}

	blocks, err := BlocksFromPageData(pd)
	if err != nil {
		ed.setState(EditorUninitialized)
		return err
	}
	if len(blocks) == 0 && *ed.e.opts.DefaultText {
		if _, ok := ed.e.registry.Lookup("text"); ok {
			blocks = append(blocks, NewBlock("text", BlockData{}))
		}
	}
	ed.list.Reset(blocks)

	ed.e.loadDependencies(ctx, ed.depsLoaded)
	ed.render()
	ed.setState(EditorReady)
	return nil
}

func (ed *Editor) setState(s EditorState) {
	ed.mu.Lock()
	ed.state = s
	ed.mu.Unlock()
}

// loadDependencies feeds each block type's declared dependencies to the
// loader once per seen set, then waits with a bounded budget for every
// symbol a dependency says to wait on. Budget exhaustion logs and
// proceeds.
func (e *Engine) loadDependencies(ctx context.Context, seen map[string]bool) {
	if e.loader == nil {
		return
	}
	var waiting []string
	for _, btype := range e.registry.Types() {
		if seen[btype] {
			continue
		}
		seen[btype] = true
		def, _ := e.registry.Lookup(btype)
		if def.FetchDependencies == nil {
			continue
		}
		for _, dep := range def.FetchDependencies() {
			if err := e.loader.Load(dep); err != nil {
				e.alerts.Log(fmt.Sprintf("loading dependency %s: %v", dep.Source, err), LevelError)
				continue
			}
			if dep.Wait != "" {
				waiting = append(waiting, dep.Wait)
			}
		}
	}

	for _, symbol := range waiting {
		tries := 0
		for !e.loader.Ready(symbol) {
			if tries > e.opts.DependencyTries {
				e.alerts.Log("Reached wait limit for script: "+symbol, LevelLog)
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.opts.DependencyInterval):
			}
			tries++
		}
	}
}

// render rebuilds the surface from the block list. Unknown types resolve
// to the placeholder definition and count toward the unknown category.
func (ed *Editor) render() {
	s := newSurface(ed.e.id, false)
	api := ed.e.api()
	for i, b := range ed.list.Blocks() {
		def := ed.e.registry.Resolve(b.Type)
		n := s.node(i+1, b.Type, api)
		if def.InsertContent != nil {
			if err := def.InsertContent(n, b.Data); err != nil {
				ed.e.alerts.Log(fmt.Sprintf("rendering %s block %d: %v", b.Type, i+1, err), LevelError)
			}
		}
		if def.AfterDOMInsert != nil {
			def.AfterDOMInsert(n, "")
		}
	}
	ed.mu.Lock()
	ed.surface = s
	ed.mu.Unlock()
}

// AddBlock inserts a new empty block of the given type at a 1-based
// position. Upload-capable types must go through UploadBlock instead.
func (ed *Editor) AddBlock(ctx context.Context, pos int, btype string) error {
	def, ok := ed.e.registry.Lookup(btype)
	if !ok {
		return &CapabilityError{BlockType: btype, Capability: "insert (unknown type)"}
	}
	if def.Upload {
		return &CapabilityError{BlockType: btype, Capability: "direct insert"}
	}

	if err := ed.list.InsertAt(pos, NewBlock(btype, BlockData{})); err != nil {
		var limit *LimitError
		if errors.As(err, &limit) {
			ed.e.alerts.Alert("You Have Reached The Block Limit")
		}
		return err
	}

	ed.render()
	ed.markUnsaved()
	ed.autosave(ctx)
	return nil
}

// DeleteBlock removes the block at a 1-based position, running its
// destroy hook first.
func (ed *Editor) DeleteBlock(ctx context.Context, pos int) error {
	b, ok := ed.list.Get(pos)
	if !ok {
		return fmt.Errorf("no block at position %d", pos)
	}
	if def, found := ed.e.registry.Lookup(b.Type); found && def.Destroy != nil {
		if n := ed.nodeAt(pos); n != nil {
			def.Destroy(n)
		}
	}
	if _, err := ed.list.DeleteAt(pos); err != nil {
		return err
	}
	ed.render()
	ed.markUnsaved()
	ed.autosave(ctx)
	return nil
}

// UploadBlock runs the media add flow: gate on size and playable
// duration, insert the block optimistically, upload, then either hand the
// asset reference to the block or roll the insert back.
func (ed *Editor) UploadBlock(ctx context.Context, pos int, btype string, file UploadFile) error {
	def, ok := ed.e.registry.Lookup(btype)
	if !ok || !def.Upload {
		return &CapabilityError{BlockType: btype, Capability: "upload"}
	}
	if ed.e.pagePath == "" || ed.e.opts.LocalMode || ed.e.gateway == nil {
		ed.e.alerts.Log("Page path is empty, uploads are disabled.", LevelLog)
		return nil
	}

	if file.Size > ed.e.opts.MediaLimitBytes() {
		ed.e.alerts.Alert(fmt.Sprintf("Files Must Be Less Than %d MB", ed.e.opts.MediaLimit))
		return &LimitError{Resource: "media size", Limit: ed.e.opts.MediaLimitBytes(), Actual: file.Size, Unit: "bytes"}
	}

	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return err
	}
	if ed.e.prober != nil {
		if seconds, probed := ed.e.prober.Duration(file.Name, data); probed {
			if seconds > float64(ed.e.opts.PlayableMediaLimit) {
				label := strings.ToUpper(btype[:1]) + btype[1:]
				ed.e.alerts.Alert(fmt.Sprintf("%s Files Must Be Less Than %d Seconds",
					label, ed.e.opts.PlayableMediaLimit))
				return &LimitError{Resource: "media duration", Limit: int64(ed.e.opts.PlayableMediaLimit), Actual: int64(seconds), Unit: "seconds"}
			}
		}
	}

	ed.setState(EditorUploading)
	defer ed.setState(EditorReady)

	if err := ed.list.InsertAt(pos, NewBlock(btype, BlockData{})); err != nil {
		var limit *LimitError
		if errors.As(err, &limit) {
			ed.e.alerts.Alert("You Have Reached The Block Limit")
		}
		return err
	}
	ed.render()
	ed.e.display.UpdateSaveStatus("Not Saved")

	assetRef, err := ed.e.gateway.UploadAsset(ctx, ed.e.pagePath, btype,
		UploadFile{Name: file.Name, Size: file.Size, Reader: bytes.NewReader(data)})
	if err != nil {
		// roll back the optimistic insert
		if _, derr := ed.list.DeleteAt(pos); derr == nil {
			ed.render()
		}
		ed.e.alerts.Log(err.Error(), LevelError)
		return err
	}

	if blk, found := ed.list.Get(pos); found {
		blk.Data.Content = assetRef
	}
	ed.render()
	if def.AfterDOMInsert != nil {
		if n := ed.nodeAt(pos); n != nil {
			def.AfterDOMInsert(n, assetRef)
		}
	}
	ed.markUnsaved()
	ed.autosave(ctx)
	return nil
}

// Save persists the page. permanent selects the published table and flips
// the save status; a temp save leaves the status alone.
func (ed *Editor) Save(ctx context.Context, permanent bool) error {
	if ed.e.pagePath == "" || ed.e.opts.LocalMode || ed.e.gateway == nil {
		ed.e.alerts.Log("Page path is empty, uploads are disabled.", LevelLog)
		return nil
	}

	ed.setState(EditorSaving)
	defer ed.setState(EditorReady)

	types, content := ed.saveData()
	tab := TableTemp
	if permanent {
		tab = TablePerm
	}
	err := ed.e.gateway.SaveBlocks(ctx, SavePayload{
		Types:   types,
		Content: content,
		EID:     ed.e.id,
		FPath:   ed.e.pagePath,
		TabID:   tab,
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			ed.e.alerts.Alert(fmt.Sprintf("Error. Status: %d Message: %s", httpErr.StatusCode, httpErr.Body))
		} else {
			ed.e.alerts.Alert(fmt.Sprintf("Unknown Error: %v", err))
		}
		return err
	}
	if permanent {
		ed.mu.Lock()
		ed.unsaved = false
		ed.mu.Unlock()
	}
	return nil
}

// saveData runs each block through its SaveContent normalizer and returns
// the parallel wire arrays.
func (ed *Editor) saveData() ([]string, []BlockData) {
	blocks := ed.list.Blocks()
	types := make([]string, 0, len(blocks))
	content := make([]BlockData, 0, len(blocks))
	for _, b := range blocks {
		data := b.Data
		if def, ok := ed.e.registry.Lookup(b.Type); ok && def.SaveContent != nil {
			data = def.SaveContent(data)
		}
		types = append(types, b.Type)
		content = append(content, data)
	}
	return types, content
}

// Revert discards the temp copy, reloads the permanent one, and rebuilds
// the whole editor from it.
func (ed *Editor) Revert(ctx context.Context) error {
	if ed.e.gateway == nil {
		return errors.New("revert requires a gateway")
	}
	pd, err := ed.e.gateway.RevertBlocks(ctx, ed.xid, ed.pagetype)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			ed.e.alerts.Alert(fmt.Sprintf("Error. Status: %d Message: %s", httpErr.StatusCode, httpErr.Body))
		}
		return err
	}
	blocks, err := BlocksFromPageData(pd)
	if err != nil {
		return err
	}
	ed.list.Reset(blocks)
	ed.render()
	ed.mu.Lock()
	ed.unsaved = false
	ed.mu.Unlock()
	return nil
}

// Export serializes the live block list to engine file text. The engine
// mode decides which categories may appear: bengine pages carry everything
// but quiz blocks, qengine pages carry only quiz blocks. Excluded blocks
// become comment lines so nothing silently disappears.
func (ed *Editor) Export() string {
	var b strings.Builder
	ns := 1
	for _, blk := range ed.list.Blocks() {
		def := ed.e.registry.Resolve(blk.Type)
		data := blk.Data
		if def.SaveContent != nil {
			data = def.SaveContent(data)
		}

		switch ed.e.opts.Mode {
		case ModeQengine:
			if def.Category != CategoryQuiz {
				fmt.Fprintf(&b, "# %s block cannot be used with Qengine\n\n", blk.Type)
				continue
			}
			namespace := strings.TrimSpace(data.Namespace)
			if namespace == "" {
				namespace = fmt.Sprintf("ns%d", ns)
				ns++
			}
			b.WriteString(formatNjnSegment(blk.Type, namespace, strings.TrimSpace(data.Conditional), data.Content))
		default:
			if def.Category == CategoryQuiz {
				fmt.Fprintf(&b, "# %s block cannot be used with Bengine\n\n", blk.Type)
				continue
			}
			namespace := fmt.Sprintf("ns%d", ns)
			ns++
			b.WriteString(formatNjnSegment(blk.Type, namespace, "", data.Content))
		}
	}
	return b.String()
}

// ExportBundle serializes the page for download. When any placed block
// names a bundled asset through SaveFile, the result is a zip holding the
// engine file plus each asset fetched from the backend; otherwise it is
// the bare engine file. Returns the suggested file name and its bytes.
func (ed *Editor) ExportBundle(ctx context.Context) (string, []byte, error) {
	njn := ed.Export()
	base := strings.ReplaceAll(ed.e.pagePath, "/", "")
	if base == "" {
		base = "page"
	}

	var refs []string
	for _, blk := range ed.list.Blocks() {
		def := ed.e.registry.Resolve(blk.Type)
		excluded := def.Category == CategoryQuiz
		if ed.e.opts.Mode == ModeQengine {
			excluded = def.Category != CategoryQuiz
		}
		if excluded || def.SaveFile == nil {
			continue
		}
		if ref, ok := def.SaveFile(blk.Data); ok {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return base + ".njn", []byte(njn), nil
	}
	if ed.e.gateway == nil {
		return "", nil, errors.New("bundle export requires a gateway")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(base + ".njn")
	if err != nil {
		return "", nil, err
	}
	if _, err := w.Write([]byte(njn)); err != nil {
		return "", nil, err
	}
	for _, ref := range refs {
		data, err := ed.e.gateway.FetchAsset(ctx, ref)
		if err != nil {
			ed.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
			return "", nil, err
		}
		w, err := zw.Create(path.Base(ref))
		if err != nil {
			return "", nil, err
		}
		if _, err := w.Write(data); err != nil {
			return "", nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return "", nil, err
	}
	return base + ".zip", buf.Bytes(), nil
}

// Import parses uploaded engine file text and rebuilds the editor from it.
func (ed *Editor) Import(ctx context.Context, name, text string) error {
	doc, err := ParseEngineFile(name, text)
	if err != nil {
		ed.e.alerts.Alert(err.Error())
		return err
	}
	for _, w := range doc.Warnings {
		ed.e.alerts.Log(name+": "+w, LevelWarn)
	}
	return ed.Load(ctx, ConvertNjn(doc))
}

// ImportBundle ingests an uploaded engine file or zip bundle. Bundled
// non-engine files are sent to the backend first, so the asset references
// in the engine file resolve after the reload; a failed send is alerted
// but does not abort the import.
func (ed *Editor) ImportBundle(ctx context.Context, name string, data []byte) error {
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return ed.Import(ctx, name, string(data))
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		ed.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
		return err
	}

	var njnText string
	haveNjn := false
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		// skip hidden files, mainly OS directory attribute junk
		if strings.HasPrefix(base, ".") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		if strings.HasSuffix(base, ".njn") {
			njnText = string(content)
			haveNjn = true
			continue
		}
		if ed.e.gateway == nil || ed.e.pagePath == "" || ed.e.opts.LocalMode {
			ed.e.alerts.Log("Page path is empty, uploads are disabled.", LevelLog)
			continue
		}
		status, err := ed.e.gateway.SendFile(ctx, ed.e.pagePath, UploadFile{
			Name: base, Size: int64(len(content)), Reader: bytes.NewReader(content),
		})
		if err != nil || status != http.StatusOK {
			ed.e.alerts.Alert("There was an error uploading: " + base)
		}
	}
	if !haveNjn {
		err := errors.New("bundle has no engine file")
		ed.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
		return err
	}
	return ed.Import(ctx, name, njnText)
}

// StyleSheet returns the block-scoped CSS for the types currently placed.
func (ed *Editor) StyleSheet() string {
	return styleSheet(ed.e.registry, ed.list.Blocks())
}

func (ed *Editor) nodeAt(pos int) *Node {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	if ed.surface == nil || pos < 1 || pos > len(ed.surface.Nodes) {
		return nil
	}
	return ed.surface.Nodes[pos-1]
}

func (ed *Editor) markUnsaved() {
	ed.mu.Lock()
	ed.unsaved = true
	ed.mu.Unlock()
	ed.e.display.UpdateSaveStatus("Not Saved")
}

func (ed *Editor) autosave(ctx context.Context) {
	if !ed.e.opts.EnableAutoSave {
		return
	}
	if err := ed.Save(ctx, false); err != nil {
		ed.e.alerts.Log(fmt.Sprintf("autosave: %v", err), LevelError)
	}
}

func (e *Engine) api() *ExtAPI {
	return &ExtAPI{
		Alerts:      e.alerts,
		Vars:        e.vars,
		EngineID:    e.id,
		PagePath:    e.pagePath,
		ContentPath: e.contentPath,
	}
}
