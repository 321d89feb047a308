package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengine/bengine"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := Page{
		Path:    "course/l1",
		TabID:   bengine.TableTemp,
		Types:   []string{"text", "image"},
		Content: []bengine.BlockData{{Content: "hello"}, {Content: "/pic.png"}},
	}
	require.NoError(t, s.SavePage(ctx, p))

	got, err := s.LoadPage(ctx, "course/l1", bengine.TableTemp)
	require.NoError(t, err)
	assert.Equal(t, p.Types, got.Types)
	assert.Equal(t, p.Content, got.Content)
}

func TestSavePageUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := Page{Path: "p", TabID: bengine.TableTemp, Types: []string{"text"}, Content: []bengine.BlockData{{Content: "v1"}}}
	require.NoError(t, s.SavePage(ctx, p))
	p.Content[0].Content = "v2"
	require.NoError(t, s.SavePage(ctx, p))

	got, err := s.LoadPage(ctx, "p", bengine.TableTemp)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content[0].Content)
}

func TestLoadPageNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadPage(context.Background(), "nowhere", bengine.TableTemp)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTempAndPermAreSeparate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePage(ctx, Page{Path: "p", TabID: bengine.TableTemp,
		Types: []string{"text"}, Content: []bengine.BlockData{{Content: "draft"}}}))
	require.NoError(t, s.SavePage(ctx, Page{Path: "p", TabID: bengine.TablePerm,
		Types: []string{"text"}, Content: []bengine.BlockData{{Content: "published"}}}))

	temp, err := s.LoadPage(ctx, "p", bengine.TableTemp)
	require.NoError(t, err)
	perm, err := s.LoadPage(ctx, "p", bengine.TablePerm)
	require.NoError(t, err)
	assert.Equal(t, "draft", temp.Content[0].Content)
	assert.Equal(t, "published", perm.Content[0].Content)
}

func TestRevertRestoresPermanentCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePage(ctx, Page{Path: "p", TabID: bengine.TablePerm,
		Types: []string{"text"}, Content: []bengine.BlockData{{Content: "published"}}}))
	require.NoError(t, s.SavePage(ctx, Page{Path: "p", TabID: bengine.TableTemp,
		Types: []string{"text", "text"}, Content: []bengine.BlockData{{Content: "a"}, {Content: "b"}}}))

	got, err := s.Revert(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, got.Types)
	assert.Equal(t, "published", got.Content[0].Content)

	temp, err := s.LoadPage(ctx, "p", bengine.TableTemp)
	require.NoError(t, err)
	assert.Equal(t, "published", temp.Content[0].Content, "the temp copy is overwritten")
}

func TestRevertWithoutPermanentCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePage(ctx, Page{Path: "p", TabID: bengine.TableTemp,
		Types: []string{"text"}, Content: []bengine.BlockData{{Content: "draft"}}}))

	got, err := s.Revert(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, got.Types, "no published copy reverts to an empty page")

	_, err = s.LoadPage(ctx, "p", bengine.TableTemp)
	assert.True(t, errors.Is(err, ErrNotFound), "the temp copy is discarded")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}
