package bengine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quizTestDefs builds the minimal quiz catalogue the runner dispatches
// on: qtext renders, qstep yields its conditional, qstore yields refs to
// carry forward, qans yields a grade.
func quizTestDefs() []*Extensible {
	return []*Extensible{
		{
			Type:     "qtext",
			Name:     "qtext",
			Category: CategoryQuiz,
			RunData: func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error) {
				n.SetHTML(api.Vars.Resolve(data.Content))
				return nil, nil
			},
		},
		{
			Type:     BlockQStep,
			Name:     "qstep",
			Category: CategoryQuiz,
			RunData: func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error) {
				return strings.TrimSpace(data.Content), nil
			},
		},
		{
			Type:     BlockQStore,
			Name:     "qstore",
			Category: CategoryQuiz,
			RunData: func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error) {
				var refs []string
				for _, line := range strings.Split(data.Content, "\n") {
					if ref := strings.TrimSpace(line); ref != "" {
						refs = append(refs, ref)
					}
				}
				return refs, nil
			},
		},
		{
			Type:     BlockQAns,
			Name:     "qans",
			Category: CategoryQuiz,
			RunData: func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error) {
				if v, ok := api.Vars.Get("form", "answer"); ok && v == strings.TrimSpace(data.Content) {
					return float64(100), nil
				}
				return float64(0), nil
			},
		},
	}
}

func newQuizEngine(t *testing.T, opts Options) (*Engine, *recordAlerter) {
	t.Helper()
	reg, err := NewRegistry(quizTestDefs(), nil)
	require.NoError(t, err)
	opts.LocalMode = true
	e, alerts, _ := newTestEngine(t, "", Config{Options: opts, Registry: reg})
	return e, alerts
}

func TestQuizRunStopsAtStepBoundary(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{
		"qtext", BlockData{Content: "question one"},
		"qstep", BlockData{},
		"qtext", BlockData{Content: "question two"},
		"qtext", BlockData{Content: "question three"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	sfc := q.Surface()
	require.NotNil(t, sfc)
	// the run stops after the step block; question two is not rendered yet
	require.Len(t, sfc.Nodes, 2)
	assert.Equal(t, "question one", sfc.Nodes[0].HTML())
	assert.False(t, q.Done())
}

func TestQuizSubmitAdvances(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{
		"qtext", BlockData{Content: "step one"},
		"qstep", BlockData{},
		"qtext", BlockData{Content: "hello @@form.name@@"},
		"qtext", BlockData{Content: "goodbye"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	ok := q.Submit(context.Background(), map[string]string{"form.name": "Ada"})
	require.True(t, ok)

	sfc := q.Surface()
	require.Len(t, sfc.Nodes, 2)
	assert.Equal(t, "hello Ada", sfc.Nodes[0].HTML())
	assert.True(t, q.Done())
}

func TestQuizSubmitConditionalGate(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{
		"qstep", BlockData{Content: "form.done"},
		"qtext", BlockData{Content: "after"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	// the gating field is absent, the submission is refused
	assert.False(t, q.Submit(context.Background(), map[string]string{"form.other": "x"}))
	// refused submissions accumulate, so supplying the field now passes
	assert.True(t, q.Submit(context.Background(), map[string]string{"form.done": "yes"}))
}

func TestQuizSubmitReplacesVariables(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{
		"qstep", BlockData{},
		"qtext", BlockData{Content: "x"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	e.Vars().Set("stale", "key", "old")
	require.True(t, q.Submit(context.Background(), map[string]string{"form.name": "Ada"}))

	_, ok := e.Vars().Get("stale", "key")
	assert.False(t, ok, "unstored variables do not survive a step boundary")
	v, ok := e.Vars().Get("form", "name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)
}

func TestQuizStoreCarriesForward(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	e.Vars().Set("keep", "token", "precious")
	data := PageData{
		"qstore", BlockData{Content: "keep.token\n"},
		"qstep", BlockData{},
		"qtext", BlockData{Content: "x"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	require.True(t, q.Submit(context.Background(), map[string]string{"form.go": "1"}))

	v, ok := e.Vars().Get("keep", "token")
	require.True(t, ok, "stored refs survive the step boundary")
	assert.Equal(t, "precious", v)
}

func TestQuizGrade(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	// the answer block is the final pair; it must still be a resume target
	data := PageData{
		"qstep", BlockData{Content: "form.answer"},
		"qans", BlockData{Content: "42"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	_, graded := q.Grade()
	assert.False(t, graded, "no grade before the answer block runs")

	require.True(t, q.Submit(context.Background(), map[string]string{"form.answer": "42"}))
	grade, graded := q.Grade()
	require.True(t, graded)
	assert.Equal(t, float64(100), grade)
	assert.True(t, q.Done())
}

func TestQuizBlockTimeoutProceeds(t *testing.T) {
	slow := &Extensible{
		Type:     "slow",
		Name:     "slow",
		Category: CategoryQuiz,
		RunData: func(ctx context.Context, api *ExtAPI, data BlockData, n *Node) (interface{}, error) {
			time.Sleep(time.Second)
			return nil, nil
		},
	}
	reg, err := NewRegistry(append(quizTestDefs(), slow), nil)
	require.NoError(t, err)
	e, alerts, _ := newTestEngine(t, "", Config{
		Options: Options{
			LocalMode:          true,
			CompletionTries:    2,
			CompletionInterval: time.Millisecond,
		},
		Registry: reg,
	})
	q := e.NewQuizRunner()

	data := PageData{
		"slow", BlockData{},
		"qtext", BlockData{Content: "still here"},
	}
	require.NoError(t, q.Load(context.Background(), data))

	assert.True(t, alerts.loggedContaining("slow never completed."))
	sfc := q.Surface()
	require.Len(t, sfc.Nodes, 2)
	assert.Equal(t, "still here", sfc.Nodes[1].HTML())
}

func TestQuizUnknownBlockLogged(t *testing.T) {
	e, alerts := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{
		"mystery", BlockData{},
		"qtext", BlockData{Content: "x"},
	}
	require.NoError(t, q.Load(context.Background(), data))
	assert.True(t, alerts.loggedContaining("unknown quiz block type: mystery"))
}

func TestQuizDoneAtEndOfData(t *testing.T) {
	e, _ := newQuizEngine(t, Options{})
	q := e.NewQuizRunner()

	data := PageData{"qtext", BlockData{Content: "only"}}
	require.NoError(t, q.Load(context.Background(), data))
	assert.True(t, q.Done())
}
