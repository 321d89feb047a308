package bengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryValidDefs(t *testing.T) {
	r, err := NewRegistry(testBlockDefs(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"image", "text"}, r.Types())

	counts := r.Counts()
	assert.Equal(t, 1, counts[CategoryText])
	assert.Equal(t, 1, counts[CategoryMedia])
	assert.Equal(t, 0, counts[CategoryUnknown])
}

func TestNewRegistryInvalidCategory(t *testing.T) {
	_, err := NewRegistry([]*Extensible{
		{Type: "bogus", Category: Category("nope")},
	}, nil)

	var rerr *RegistryError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "bogus", rerr.BlockType)
	assert.Contains(t, rerr.Reason, "invalid category")
}

func TestNewRegistryEmptyType(t *testing.T) {
	_, err := NewRegistry([]*Extensible{{Category: CategoryText}}, nil)
	assert.Error(t, err)
}

func TestNewRegistryDuplicateType(t *testing.T) {
	_, err := NewRegistry([]*Extensible{
		{Type: "text", Category: CategoryText},
		{Type: "text", Category: CategoryText},
	}, nil)
	assert.Error(t, err)
}

func TestRegistryLookupNeverFabricates(t *testing.T) {
	r, err := NewRegistry(testBlockDefs(), nil)
	require.NoError(t, err)

	_, ok := r.Lookup("mystery")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Counts()[CategoryUnknown])
}

func TestRegistryResolveUnknown(t *testing.T) {
	r, err := NewRegistry(testBlockDefs(), nil)
	require.NoError(t, err)

	def := r.Resolve("mystery")
	require.NotNil(t, def)
	assert.Equal(t, CategoryUnknown, def.Category)
	assert.Equal(t, 1, r.Counts()[CategoryUnknown])

	// resolving the same type again reuses the synthetic definition
	again := r.Resolve("mystery")
	assert.Same(t, def, again)
	assert.Equal(t, 1, r.Counts()[CategoryUnknown])

	// and it is now visible through Lookup
	found, ok := r.Lookup("mystery")
	require.True(t, ok)
	assert.Same(t, def, found)
}

func TestRegistryResolveKnownUnchanged(t *testing.T) {
	r, err := NewRegistry(testBlockDefs(), nil)
	require.NoError(t, err)

	def := r.Resolve("text")
	assert.Equal(t, CategoryText, def.Category)
	assert.Equal(t, 0, r.Counts()[CategoryUnknown])
	assert.Equal(t, []string{"image", "text"}, r.Types(), "synthetic types never join the catalogue")
}

func TestUnknownExtensibleRendersPlaceholder(t *testing.T) {
	r, err := NewRegistry(nil, nil)
	require.NoError(t, err)

	def := r.Resolve("ghost")
	n := &Node{}
	require.NoError(t, def.InsertContent(n, BlockData{Content: "payload"}))
	assert.Contains(t, n.HTML(), "unknown block")

	// saving an unknown block drops its payload but keeps the type tag
	saved := def.SaveContent(BlockData{Content: "payload", Namespace: "x"})
	assert.Equal(t, BlockData{}, saved)
}
