package blocks

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bengine/bengine"
)

// QText renders quiz prose and form fields. Content is markdown with
// @@namespace.key@@ references resolved; input fields are declared one per
// line as [namespace.key] and become named form inputs the runner's Submit
// collects. A block carrying a conditional renders nothing until the
// named variable is set.
func QText() *bengine.Extensible {
	return &bengine.Extensible{
		Type:     "qtext",
		Name:     "quiz text",
		Category: bengine.CategoryQuiz,
		RunData: func(ctx context.Context, api *bengine.ExtAPI, data bengine.BlockData, n *bengine.Node) (interface{}, error) {
			if !api.Vars.CheckConditional(strings.TrimSpace(data.Conditional)) {
				return nil, nil
			}
			var b strings.Builder
			for _, line := range strings.Split(data.Content, "\n") {
				trimmed := strings.TrimSpace(line)
				if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
					name := trimmed[1 : len(trimmed)-1]
					fmt.Fprintf(&b, `<input type="text" name="%s" class="bengine-x-qinput">`, name)
					b.WriteString("\n")
					continue
				}
				b.WriteString(line)
				b.WriteString("\n")
			}
			resolved := api.Vars.Resolve(b.String())
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(resolved), &buf); err != nil {
				return nil, err
			}
			n.SetHTML(buf.String())
			return nil, nil
		},
		ShowContent: func(n *bengine.Node, data bengine.BlockData) error {
			n.SetHTML(n.API.Vars.Resolve(data.Content))
			return nil
		},
	}
}

// QStep marks a step boundary. Its content names the "namespace.key"
// conditional a submission must satisfy before the quiz advances; the
// runner receives it as the block's result.
func QStep() *bengine.Extensible {
	return &bengine.Extensible{
		Type:     "qstep",
		Name:     "quiz step",
		Category: bengine.CategoryQuiz,
		RunData: func(ctx context.Context, api *bengine.ExtAPI, data bengine.BlockData, n *bengine.Node) (interface{}, error) {
			return strings.TrimSpace(api.Vars.Resolve(data.Content)), nil
		},
	}
}

// QStore declares which variables survive the next step boundary. Content
// is one "namespace.key" reference per line; the runner appends them to
// the carry-forward list.
func QStore() *bengine.Extensible {
	return &bengine.Extensible{
		Type:     "qstore",
		Name:     "quiz store",
		Category: bengine.CategoryQuiz,
		RunData: func(ctx context.Context, api *bengine.ExtAPI, data bengine.BlockData, n *bengine.Node) (interface{}, error) {
			var refs []string
			for _, line := range strings.Split(data.Content, "\n") {
				if ref := strings.TrimSpace(line); ref != "" {
					refs = append(refs, ref)
				}
			}
			return refs, nil
		},
	}
}

// QAns grades the submitted answers. Content is one "namespace.key =
// expected" line per answer; the result is the percentage of answers whose
// submitted value matches exactly, which the runner records as the grade.
func QAns() *bengine.Extensible {
	return &bengine.Extensible{
		Type:     "qans",
		Name:     "quiz answers",
		Category: bengine.CategoryQuiz,
		RunData: func(ctx context.Context, api *bengine.ExtAPI, data bengine.BlockData, n *bengine.Node) (interface{}, error) {
			total := 0
			correct := 0
			for _, line := range strings.Split(data.Content, "\n") {
				ref, expected, found := strings.Cut(line, "=")
				if !found {
					continue
				}
				total++
				namespace, key, ok := strings.Cut(strings.TrimSpace(ref), ".")
				if !ok {
					continue
				}
				actual, exists := api.Vars.Get(namespace, key)
				if exists && strings.TrimSpace(actual) == strings.TrimSpace(expected) {
					correct++
				}
			}
			if total == 0 {
				return float64(0), nil
			}
			grade := 100 * float64(correct) / float64(total)
			n.SetHTML(fmt.Sprintf(`<p class="bengine-x-grade">Grade: %.1f%%</p>`, grade))
			return grade, nil
		},
	}
}
