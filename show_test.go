package bengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowLoadRendersBlocks(t *testing.T) {
	e, _, _ := newTestEngine(t, "", Config{Options: Options{LocalMode: true}})
	e.Vars().Set("form", "name", "Ada")
	s := e.NewShow()

	require.NoError(t, s.Load(context.Background(), PageData{
		"text", BlockData{Content: "hi @@form.name@@"},
	}))

	sfc := s.Surface()
	require.NotNil(t, sfc)
	require.Len(t, sfc.Nodes, 1)
	assert.Equal(t, "hi Ada", sfc.Nodes[0].HTML())
	assert.Contains(t, sfc.HTML(), "hi Ada")
}

func TestShowUnknownTypeAborts(t *testing.T) {
	e, alerts, _ := newTestEngine(t, "", Config{Options: Options{LocalMode: true}})
	s := e.NewShow()

	err := s.Load(context.Background(), PageData{
		"mystery", BlockData{Content: "anything"},
	})

	var cerr *CapabilityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "mystery", cerr.BlockType)
	assert.True(t, alerts.alertedContaining("Missing Block Dependency: mystery"))
}

func TestShowSingleView(t *testing.T) {
	e, _, _ := newTestEngine(t, "", Config{Options: Options{LocalMode: true, EnableSingleView: true}})
	s := e.NewShow()

	require.NoError(t, s.Load(context.Background(), PageData{
		"text", BlockData{Content: "one"},
		"text", BlockData{Content: "two"},
		"text", BlockData{Content: "three"},
	}))

	sfc := s.Surface()
	assert.Equal(t, 1, sfc.Visible())
	html := sfc.HTML()
	assert.Contains(t, html, "one")
	assert.NotContains(t, html, "two")

	assert.True(t, s.Next())
	assert.Equal(t, 2, s.Surface().Visible())
	assert.True(t, s.Next())
	assert.False(t, s.Next(), "cannot advance past the last block")

	assert.True(t, s.Prev())
	assert.Equal(t, 2, s.Surface().Visible())
}

func TestShowFullViewRendersEverything(t *testing.T) {
	e, _, _ := newTestEngine(t, "", Config{Options: Options{LocalMode: true}})
	s := e.NewShow()

	require.NoError(t, s.Load(context.Background(), PageData{
		"text", BlockData{Content: "one"},
		"text", BlockData{Content: "two"},
	}))

	html := s.Surface().HTML()
	assert.Contains(t, html, "one")
	assert.Contains(t, html, "two")
	assert.False(t, s.Next(), "single view navigation is disabled in full view")
}
