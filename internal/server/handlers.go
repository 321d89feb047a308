package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bengine/bengine"
	"github.com/bengine/bengine/internal/assets"
	"github.com/bengine/bengine/internal/store"
)

const contentDocName = "bengine.json"

// handleContent serves a page document or a stored asset under
// /content/. The document comes from the store, preferring the temp
// copy so an editor reload sees its work in progress; assets come from
// the content directory on disk.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/content/")
	rel = strings.Trim(rel, "/")

	if path.Base(rel) == contentDocName {
		s.serveDocument(w, r, path.Dir(rel))
		return
	}
	s.serveAsset(w, r, rel)
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request, pagePath string) {
	p, err := s.store.LoadPage(r.Context(), pagePath, bengine.TableTemp)
	if errors.Is(err, store.ErrNotFound) {
		p, err = s.store.LoadPage(r.Context(), pagePath, bengine.TablePerm)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "no such page", "")
		return
	}
	if err != nil {
		s.log.Errorw("loading page", "path", pagePath, "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not load page", "")
		return
	}
	writeJSON(w, http.StatusOK, bengine.ContentDocument{Types: p.Types, Content: p.Content})
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, rel string) {
	clean := path.Clean("/" + rel)
	full := filepath.Join(s.cfg.Content.GetDir(), filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeMessage(w, http.StatusNotFound, "no such file", "")
		return
	}
	http.ServeFile(w, r, full)
}

// handleSave persists a page copy. Tab id 0 is the autosave temp copy,
// tab id 1 the published one.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload bengine.SavePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}
	if payload.FPath == "" {
		writeMessage(w, http.StatusBadRequest, "missing fpath", "")
		return
	}
	if payload.TabID != bengine.TableTemp && payload.TabID != bengine.TablePerm {
		writeMessage(w, http.StatusBadRequest, "invalid tabid", "")
		return
	}
	if len(payload.Types) != len(payload.Content) {
		writeMessage(w, http.StatusBadRequest, "types and content length mismatch", "")
		return
	}

	err := s.store.SavePage(r.Context(), store.Page{
		Path:    strings.Trim(payload.FPath, "/"),
		TabID:   payload.TabID,
		Types:   payload.Types,
		Content: payload.Content,
	})
	if err != nil {
		s.log.Errorw("saving page", "path", payload.FPath, "tabid", payload.TabID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not save page", "")
		return
	}

	if payload.TabID == bengine.TablePerm {
		s.hub.Broadcast(StatusEvent{Kind: "saved", Page: payload.FPath})
	}
	writeMessage(w, http.StatusOK, "saved", "")
}

// handleRevert restores the permanent copy over the temp one and
// returns it as the comma-joined [type, content, ...] string the editor
// expects.
func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form", "")
		return
	}
	xid := r.PostFormValue("xid")
	pagetype := r.PostFormValue("pagetype")
	if xid == "" || pagetype == "" {
		writeMessage(w, http.StatusBadRequest, "missing xid or pagetype", "")
		return
	}

	p, err := s.store.Revert(r.Context(), pagetype+"/"+xid)
	if err != nil {
		s.log.Errorw("reverting page", "xid", xid, "pagetype", pagetype, "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not revert page", "")
		return
	}

	pairs := make([]string, 0, len(p.Types)*2)
	for i, t := range p.Types {
		pairs = append(pairs, t, p.Content[i].Content)
	}
	s.hub.Broadcast(StatusEvent{Kind: "saved", Page: p.Path})
	writeMessage(w, http.StatusOK, "done", strings.Join(pairs, ","))
}

// handleUpload accepts one multipart media file and streams conversion
// progress back as a growing comma-separated body. The final token is
// the asset reference; a failure is reported as a single token with an
// "Error:" prefix.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fpath := r.URL.Query().Get("fpath")
	btype := r.URL.Query().Get("btype")
	if fpath == "" {
		writeMessage(w, http.StatusBadRequest, "missing fpath", "")
		return
	}

	file, header, err := r.FormFile("media")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "missing media file", "")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	first := true
	emit := func(token string) {
		if !first {
			fmt.Fprint(w, ",")
		}
		first = false
		fmt.Fprint(w, token)
		if flusher != nil {
			flusher.Flush()
		}
	}

	ref, err := s.assets.SaveUpload(r.Context(), fpath, btype, header.Filename, file, func(pct int) {
		emit(fmt.Sprintf("%d", pct))
	})
	if err != nil {
		s.log.Errorw("storing upload", "path", fpath, "type", btype, "error", err)
		emit("Error: " + err.Error())
		return
	}
	emit(ref)
}

// handleFiles resolves a batch of engine-file asset references. Any
// single failure fails the whole batch with a 404, matching the
// all-or-nothing contract the import flow relies on.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	var req assets.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	refs, err := s.assets.Resolve(r.Context(), req)
	if err != nil {
		var ue *assets.UnresolvedError
		if errors.As(err, &ue) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"msg": "Error. " + ue.Name, "files": refs,
			})
			return
		}
		s.log.Errorw("resolving files", "path", req.FPath, "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not resolve files", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"msg": "done", "files": refs})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg, data string) {
	writeJSON(w, status, map[string]string{"msg": msg, "data": data})
}
