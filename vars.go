package bengine

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
)

// varToken matches @@namespace.key@@ references. The lazy inner match keeps
// adjacent tokens from merging.
var varToken = regexp.MustCompile(`@@(.*?)@@`)

// VarStore holds the engine's variables as namespace -> key -> value. The
// quiz runner replaces the whole store at each step boundary; everything
// else reads through Resolve and ResolvePath.
type VarStore struct {
	mu     sync.RWMutex
	vars   map[string]map[string]string
	alerts Alerter
}

// NewVarStore creates a store seeded with the engine's own namespace,
// including a per-instance random seed.
func NewVarStore(alerts Alerter) *VarStore {
	s := &VarStore{
		vars:   make(map[string]map[string]string),
		alerts: alerts,
	}
	s.Set("qengine", "randomseed", fmt.Sprintf("%d", rand.Uint32()))
	return s
}

// Set stores a value, creating the namespace as needed.
func (s *VarStore) Set(namespace, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.vars[namespace]
	if !ok {
		ns = make(map[string]string)
		s.vars[namespace] = ns
	}
	ns[key] = value
}

// Get looks up a single variable.
func (s *VarStore) Get(namespace, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.vars[namespace]
	if !ok {
		return "", false
	}
	v, ok := ns[key]
	return v, ok
}

// ReplaceAll swaps the entire store. Used at quiz step boundaries, where
// the next step's variables fully replace the previous step's.
func (s *VarStore) ReplaceAll(next map[string]map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = next
}

// Snapshot returns a deep copy of the current store.
func (s *VarStore) Snapshot() map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]string, len(s.vars))
	for nsName, ns := range s.vars {
		cp := make(map[string]string, len(ns))
		for k, v := range ns {
			cp[k] = v
		}
		out[nsName] = cp
	}
	return out
}

// Resolve replaces every @@namespace.key@@ token in text. A token whose
// variable does not exist becomes the empty string and logs one diagnostic;
// the scan always advances, so malformed references cannot loop.
func (s *VarStore) Resolve(text string) string {
	return varToken.ReplaceAllStringFunc(text, func(token string) string {
		payload := token[2 : len(token)-2]
		namespace, key, _ := strings.Cut(payload, ".")
		v, ok := s.Get(namespace, key)
		if !ok {
			s.alerts.Log("variable not found: "+payload, LevelError)
			return ""
		}
		return v
	})
}

// ResolvePath looks up a dotted "namespace.key" reference, logging a
// diagnostic when it is absent.
func (s *VarStore) ResolvePath(path string) (string, bool) {
	namespace, key, found := strings.Cut(path, ".")
	if found {
		if v, ok := s.Get(namespace, key); ok {
			return v, true
		}
	}
	s.alerts.Log("resource not found: "+path, LevelError)
	return "", false
}

// CheckConditional reports whether a block gated on "namespace.key" should
// run: true when the conditional is empty, or when the variable exists and
// is non-empty.
func (s *VarStore) CheckConditional(conditional string) bool {
	if conditional == "" {
		return true
	}
	namespace, key, _ := strings.Cut(conditional, ".")
	v, ok := s.Get(namespace, key)
	return ok && v != ""
}

// VarRef is a static variable reference found in block content.
type VarRef struct {
	Namespace string
	Key       string
}

// ScanVars extracts every @@namespace.key@@ reference from text without
// resolving anything. Tokens with no dot are skipped.
func ScanVars(text string) []VarRef {
	var refs []VarRef
	for _, m := range varToken.FindAllStringSubmatch(text, -1) {
		namespace, key, found := strings.Cut(m[1], ".")
		if !found {
			continue
		}
		refs = append(refs, VarRef{Namespace: namespace, Key: key})
	}
	return refs
}
