package bengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Table ids for save requests: temp holds work in progress, perm is the
// published copy revert restores from.
const (
	TableTemp = 0
	TablePerm = 1
)

// Gateway is the persistence client. It talks to the serving side of this
// repository (internal/server) or any compatible backend.
type Gateway struct {
	baseURL string
	client  *http.Client
	display Display
	log     *zap.SugaredLogger
}

// NewGateway creates a client for the given base URL. A nil display
// discards progress; a nil logger is replaced with a no-op one.
func NewGateway(baseURL string, display Display, logger *zap.SugaredLogger) *Gateway {
	if display == nil {
		display = nopDisplay{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		display: display,
		log:     logger,
	}
}

// SavePayload is the body of a save request.
type SavePayload struct {
	Types   []string    `json:"types"`
	Content []BlockData `json:"content"`
	EID     string      `json:"eid"`
	FPath   string      `json:"fpath"`
	TabID   int         `json:"tabid"`
}

// ContentDocument is the stored page shape at
// <content>/<path>/bengine.json and in save bodies.
type ContentDocument struct {
	Types   []string    `json:"types"`
	Content []BlockData `json:"content"`
}

type gatewayMessage struct {
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

// FetchContent retrieves a page's stored blocks. A 404 means a new, empty
// document and is not an error.
func (g *Gateway) FetchContent(ctx context.Context, pagePath string) (PageData, error) {
	u := g.baseURL + "/content/" + strings.Trim(pagePath, "/") + "/bengine.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PageData{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Operation: "fetch", StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var doc ContentDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("fetch: decoding content document: %w", err)
	}
	return JoinPageData(doc.Types, doc.Content)
}

// SaveBlocks persists the page to the temp or permanent table. Only a
// permanent save updates the save-status display.
func (g *Gateway) SaveBlocks(ctx context.Context, payload SavePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/save", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if payload.TabID == TablePerm {
		g.display.ProgressInitialize("Saving...", int64(len(body)))
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.messageError("save", resp)
	}
	if payload.TabID == TablePerm {
		g.display.ProgressFinalize("Saved", int64(len(body)))
		g.display.UpdateSaveStatus("Saved")
	}
	return nil
}

// RevertBlocks asks the backend to restore the permanent copy over the
// temp one and returns the permanent page data. An empty data field means
// the permanent copy is an empty page.
func (g *Gateway) RevertBlocks(ctx context.Context, xid, pagetype string) (PageData, error) {
	form := url.Values{"xid": {xid}, "pagetype": {pagetype}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/revertblocks",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.messageError("revert", resp)
	}

	var msg gatewayMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("revert: decoding response: %w", err)
	}
	g.display.UpdateSaveStatus("Saved")
	if msg.Data == "" {
		return PageData{}, nil
	}
	return parseRevertPairs(msg.Data)
}

// parseRevertPairs decodes the comma-joined [type, content, ...] string a
// revert response carries.
func parseRevertPairs(data string) (PageData, error) {
	parts := strings.Split(data, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("revert: odd pair count %d", len(parts))
	}
	pd := make(PageData, 0, len(parts))
	for i := 0; i < len(parts); i += 2 {
		pd = append(pd, parts[i], BlockData{Content: parts[i+1]})
	}
	return pd, nil
}

// UploadFile is a file handed to the upload flow.
type UploadFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// UploadAsset uploads a media file for a block and returns the asset
// reference the backend assigned. The response body is a growing
// comma-separated progress stream whose final token is the reference; a
// body starting with "Error:" is a typed *UploadError.
func (g *Gateway) UploadAsset(ctx context.Context, pagePath, btype string, file UploadFile) (string, error) {
	resp, err := g.postMedia(ctx, pagePath, btype, file)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", g.messageError("upload", resp)
	}

	session := newUploadSession(g.display)
	text, err := session.consume(resp.Body)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(text, "Error:") {
		return "", &UploadError{BlockType: btype, Message: text}
	}
	return session.lastToken(), nil
}

// FetchAsset retrieves a stored asset's bytes by its served reference,
// e.g. "/content/page/assets/pic.png". Used by bundle export.
func (g *Gateway) FetchAsset(ctx context.Context, ref string) ([]byte, error) {
	u := g.baseURL + "/" + strings.TrimLeft(ref, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Operation: "asset", StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}

// SendFile uploads a file with no block type attached, which skips any
// conversion service. Used by engine-file bundle imports.
func (g *Gateway) SendFile(ctx context.Context, pagePath string, file UploadFile) (int, error) {
	resp, err := g.postMedia(ctx, pagePath, "", file)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (g *Gateway) postMedia(ctx context.Context, pagePath, btype string, file UploadFile) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", file.Name)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(part, file.Reader)
	if err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u := g.baseURL + "/upload?fpath=" + url.QueryEscape(pagePath)
	if btype != "" {
		u += "&btype=" + url.QueryEscape(btype)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	g.display.ProgressInitialize("Uploading...", written)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	g.display.ProgressFinalize("Uploaded", written)
	return resp, nil
}

// FileRequest asks the backend to resolve engine-file asset references
// into served paths, downloading remote ones as needed.
type FileRequest struct {
	Files     map[string]string `json:"files"` // key -> name or URL
	Namespace string            `json:"namespace"`
	FPath     string            `json:"fpath"`
}

type fileResponse struct {
	Files map[string]string `json:"files"`
}

// ResolveFiles resolves a batch of asset references. Any single failure
// fails the whole batch.
func (g *Gateway) ResolveFiles(ctx context.Context, freq FileRequest) (map[string]string, error) {
	body, err := json.Marshal(freq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/files", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.messageError("files", resp)
	}
	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("files: decoding response: %w", err)
	}
	return fr.Files, nil
}

func (g *Gateway) messageError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)
	var gm gatewayMessage
	if json.Unmarshal(body, &gm) == nil && gm.Msg != "" {
		msg = gm.Msg
	}
	return &HTTPError{Operation: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
}

// uploadSession tracks the previous and current read positions over the
// growing conversion-progress stream, so each progress report covers only
// the newly arrived window.
type uploadSession struct {
	display Display
	text    strings.Builder
	prev    int
	curr    int
	calls   int
}

func newUploadSession(display Display) *uploadSession {
	return &uploadSession{display: display}
}

// consume reads the whole response body, reporting conversion progress as
// chunks arrive, and returns the final accumulated text.
func (s *uploadSession) consume(r io.Reader) (string, error) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.text.Write(buf[:n])
			s.observe()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	s.display.ProgressFinalize("Not Saved", parseProgress(s.lastToken()))
	return s.text.String(), nil
}

func (s *uploadSession) observe() {
	spot := s.text.Len()
	if s.curr != spot {
		s.prev = s.curr
		s.curr = spot
	}
	token := s.windowToken()
	s.calls++
	if s.calls == 1 {
		s.display.ProgressInitialize("Converting...", parseProgress(token))
	} else {
		s.display.ProgressUpdate(parseProgress(token))
	}
}

// windowToken returns the last comma-separated token of the newly arrived
// window.
func (s *uploadSession) windowToken() string {
	window := s.text.String()[s.prev:s.curr]
	vals := strings.Split(window, ",")
	return vals[len(vals)-1]
}

// lastToken returns the final token of the whole stream, which on success
// is the asset reference.
func (s *uploadSession) lastToken() string {
	vals := strings.Split(s.text.String(), ",")
	return strings.TrimSpace(vals[len(vals)-1])
}

func parseProgress(token string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
