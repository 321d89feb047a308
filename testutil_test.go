package bengine

import (
	"strings"
	"sync"
)

// recordAlerter captures every alert and log line for assertions.
type recordAlerter struct {
	mu       sync.Mutex
	alerts   []string
	logs     []string
	confirms []string
}

func (a *recordAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, msg)
}

func (a *recordAlerter) Confirm(msg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confirms = append(a.confirms, msg)
	return true
}

func (a *recordAlerter) Log(msg, level string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, level+": "+msg)
}

func (a *recordAlerter) loggedContaining(substr string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (a *recordAlerter) alertedContaining(substr string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.alerts {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// recordDisplay captures progress and save-status calls.
type recordDisplay struct {
	mu       sync.Mutex
	statuses []string
	labels   []string
	updates  []int64
}

func (d *recordDisplay) ProgressInitialize(label string, total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labels = append(d.labels, label)
}

func (d *recordDisplay) ProgressUpdate(value int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, value)
}

func (d *recordDisplay) ProgressFinalize(label string, total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labels = append(d.labels, label)
}

func (d *recordDisplay) UpdateSaveStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, status)
}

func (d *recordDisplay) lastStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.statuses) == 0 {
		return ""
	}
	return d.statuses[len(d.statuses)-1]
}

// testBlockDefs is a small catalogue covering the categories the
// controllers dispatch on.
func testBlockDefs() []*Extensible {
	return []*Extensible{
		{
			Type:     "text",
			Name:     "text",
			Category: CategoryText,
			InsertContent: func(n *Node, data BlockData) error {
				n.SetHTML("<textarea>" + data.Content + "</textarea>")
				return nil
			},
			ShowContent: func(n *Node, data BlockData) error {
				n.SetHTML(n.API.Vars.Resolve(data.Content))
				return nil
			},
			StyleBlock: func() string { return ".t{}" },
		},
		{
			Type:     "image",
			Name:     "image",
			Category: CategoryMedia,
			Upload:   true,
			Accept:   "image/*",
			InsertContent: func(n *Node, data BlockData) error {
				n.SetHTML(`<img src="` + data.Content + `">`)
				return nil
			},
			ShowContent: func(n *Node, data BlockData) error {
				n.SetHTML(`<img src="` + data.Content + `">`)
				return nil
			},
			SaveFile: func(data BlockData) (string, bool) {
				return data.Content, data.Content != ""
			},
		},
	}
}

func newTestEngine(t interface {
	Helper()
	Fatalf(format string, args ...interface{})
}, pagePath string, cfg Config) (*Engine, *recordAlerter, *recordDisplay) {
	t.Helper()
	alerts := &recordAlerter{}
	display := &recordDisplay{}
	if cfg.Registry == nil {
		reg, err := NewRegistry(testBlockDefs(), nil)
		if err != nil {
			t.Fatalf("building registry: %v", err)
		}
		cfg.Registry = reg
	}
	cfg.Alerts = alerts
	cfg.Display = display
	e, err := New(pagePath, cfg)
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return e, alerts, display
}
