package bengine

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a fatal problem in an engine file. Parsing never
// returns a partial document alongside one of these.
type ParseError struct {
	File    string // source file path, may be empty for in-memory input
	Line    int    // line number (1-indexed)
	Message string
	Code    string // offending line
	Hint    string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File + ": ")
	}
	fmt.Fprintf(&b, "line %d: %s", e.Line, e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, ": %q", e.Code)
	}
	if e.Hint != "" {
		b.WriteString(" (" + e.Hint + ")")
	}
	return b.String()
}

// NewParseError creates a ParseError for the given line.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{File: file, Line: line, Message: message}
}

// WithCode attaches the offending line to the error.
func (e *ParseError) WithCode(code string) *ParseError {
	e.Code = code
	return e
}

// WithHint attaches a suggestion to the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// LimitError reports a recoverable ceiling violation, such as the block
// count or media size limits. Callers surface it to the user and carry on.
type LimitError struct {
	Resource string // "blocks", "media size", "media duration"
	Limit    int64
	Actual   int64
	Unit     string // "", "bytes", "seconds"
}

func (e *LimitError) Error() string {
	unit := e.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s limit exceeded: %d%s allowed, got %d%s", e.Resource, e.Limit, unit, e.Actual, unit)
}

// HTTPError represents a non-200 response from the persistence gateway.
type HTTPError struct {
	Operation  string // "save", "revert", "fetch", "upload", "files"
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Operation, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d %s", e.Operation, e.StatusCode, e.Status)
}

// IsRetryable returns true for 5xx responses and 429.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NotFound reports whether err is an HTTPError with status 404.
func NotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}

// UploadError is a failure reported inside an otherwise successful upload
// response stream. The editor rolls back the optimistically inserted block
// when it sees one.
type UploadError struct {
	BlockType string
	Message   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s block failed: %s", e.BlockType, e.Message)
}

// CapabilityError reports a block definition missing a capability that the
// requested operation requires.
type CapabilityError struct {
	BlockType  string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("block type %q has no %s capability", e.BlockType, e.Capability)
}

// RegistryError is a fatal block catalogue construction failure.
type RegistryError struct {
	BlockType string
	Reason    string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("block type %q: %s", e.BlockType, e.Reason)
}
