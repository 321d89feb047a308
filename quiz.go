package bengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Quiz block types the runner post-processes specially.
const (
	BlockQStep  = "qstep"
	BlockQStore = "qstore"
	BlockQAns   = "qans"
)

// QuizRunner drives a page as a step-gated quiz. Blocks execute in order
// until a step boundary, then the runner waits for a submission before
// resuming. One runner per engine instance.
type QuizRunner struct {
	mu sync.Mutex

	e          *Engine
	data       PageData
	surface    *Surface
	depsLoaded map[string]bool

	grade           *float64
	stepConditional string
	stepCurrent     int
	stepNext        *int // nil = not yet computed, -1 = no more steps
	submitData      map[string]map[string]string
	store           []string
}

// NewQuizRunner creates the quiz controller for this engine's page.
func (e *Engine) NewQuizRunner() *QuizRunner {
	return &QuizRunner{
		e:          e,
		depsLoaded: make(map[string]bool),
		submitData: make(map[string]map[string]string),
	}
}

// Grade returns the grade the last qans block produced, if any.
func (q *QuizRunner) Grade() (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.grade == nil {
		return 0, false
	}
	return *q.grade, true
}

// Done reports whether the quiz has no further steps.
func (q *QuizRunner) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stepNext != nil && *q.stepNext == -1
}

// Surface returns the current step's render surface.
func (q *QuizRunner) Surface() *Surface {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.surface
}

// Load initializes the quiz from inline page data or the stored document
// and runs blocks up to the first step boundary.
func (q *QuizRunner) Load(ctx context.Context, inline PageData) error {
	pd := inline
	if len(pd) == 0 && q.e.pagePath != "" && !q.e.opts.LocalMode && q.e.gateway != nil {
		fetched, err := q.e.gateway.FetchContent(ctx, q.e.pagePath)
		if err != nil {
			q.e.alerts.Alert(fmt.Sprintf("Error: %v", err))
			return err
		}
		pd = fetched
	}
	if _, _, err := pd.Split(); err != nil {
		return err
	}

	q.mu.Lock()
	q.data = pd
	q.stepCurrent = 0
	q.mu.Unlock()

	q.e.loadDependencies(ctx, q.depsLoaded)
	q.run(ctx, 0)
	return nil
}

// run executes blocks from the given page-data index until a step
// boundary or the end of the data, rendering into a fresh surface. Block
// failures are absorbed so one bad block cannot wedge the quiz.
func (q *QuizRunner) run(ctx context.Context, count int) {
	sfc := newSurface(q.e.id, false)
	api := q.e.api()
	pos := 1

	for {
		if count == -1 || count >= len(q.data) {
			break
		}
		blockType, _ := q.data[count].(string)
		blockData, _ := q.data[count+1].(BlockData)

		n := sfc.node(pos, blockType, api)
		pos++
		result := q.await(ctx, blockType, blockData, n)

		stepFound := false
		switch blockType {
		case BlockQStep:
			if s, ok := result.(string); ok {
				q.mu.Lock()
				q.stepConditional = s
				q.mu.Unlock()
			}
			stepFound = true
		case BlockQStore:
			if refs, ok := result.([]string); ok {
				q.mu.Lock()
				q.store = append(q.store, refs...)
				q.mu.Unlock()
			}
		case BlockQAns:
			if g, ok := result.(float64); ok {
				q.mu.Lock()
				q.grade = &g
				q.mu.Unlock()
			}
		}

		count += 2

		q.mu.Lock()
		next := -1 // indicates no further pairs
		if count < len(q.data) {
			next = count
		}
		q.stepNext = &next
		q.mu.Unlock()

		if stepFound {
			count = -1
		}
	}

	q.mu.Lock()
	q.surface = sfc
	q.mu.Unlock()
}

// await runs the block's handler in its own goroutine and waits for the
// result with a bounded budget. A handler that never finishes is logged
// and abandoned, and the run proceeds with no result.
func (q *QuizRunner) await(ctx context.Context, blockType string, data BlockData, n *Node) interface{} {
	def, ok := q.e.registry.Lookup(blockType)
	if !ok {
		q.e.alerts.Log("unknown quiz block type: "+blockType, LevelError)
		return nil
	}
	if def.RunData == nil {
		return nil
	}

	type runResult struct {
		value interface{}
		err   error
	}
	ch := make(chan runResult, 1)
	go func() {
		v, err := def.RunData(ctx, q.e.api(), data, n)
		ch <- runResult{v, err}
	}()

	budget := time.Duration(q.e.opts.CompletionTries) * q.e.opts.CompletionInterval
	select {
	case r := <-ch:
		if r.err != nil {
			q.e.alerts.Log(fmt.Sprintf("%s block failed: %v", blockType, r.err), LevelError)
			return nil
		}
		return r.value
	case <-time.After(budget):
		q.e.alerts.Log(blockType+" never completed.", LevelLog)
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Submit takes the form fields of the current step, keyed
// "namespace.key". When the step's conditional is satisfied (or there is
// none), the variable store is rebuilt from the carried-forward refs plus
// the submitted data, transient state resets, and the next step runs on a
// fresh surface. An unsatisfied conditional leaves everything in place for
// another attempt.
func (q *QuizRunner) Submit(ctx context.Context, fields map[string]string) bool {
	q.mu.Lock()
	for key, value := range fields {
		namespace, name, found := strings.Cut(key, ".")
		if !found {
			continue
		}
		ns, ok := q.submitData[namespace]
		if !ok {
			ns = make(map[string]string)
			q.submitData[namespace] = ns
		}
		ns[name] = value
	}

	submit := true
	if q.stepConditional != "" {
		submit = false
		namespace, name, _ := strings.Cut(q.stepConditional, ".")
		if ns, ok := q.submitData[namespace]; ok && ns[name] != "" {
			submit = true
		}
	}
	if !submit {
		q.mu.Unlock()
		return false
	}

	// carry forward the stored refs from the live variables, then lay the
	// submitted namespaces over them wholesale
	next := make(map[string]map[string]string)
	for _, ref := range q.store {
		namespace, name, found := strings.Cut(ref, ".")
		if !found {
			continue
		}
		v, ok := q.e.vars.Get(namespace, name)
		if !ok {
			continue
		}
		ns, exists := next[namespace]
		if !exists {
			ns = make(map[string]string)
			next[namespace] = ns
		}
		ns[name] = v
	}
	for namespace, ns := range q.submitData {
		next[namespace] = ns
	}

	resume := -1
	if q.stepNext != nil {
		resume = *q.stepNext
	}
	q.submitData = make(map[string]map[string]string)
	q.stepConditional = ""
	q.stepCurrent = resume
	q.stepNext = nil
	q.store = nil
	q.mu.Unlock()

	q.e.vars.ReplaceAll(next)
	q.run(ctx, resume)
	return true
}
