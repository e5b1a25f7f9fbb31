package index

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/errors"
)

// exerciseIndex runs the behavior every backend must share
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	doc, err := NewDocument("cpb-aacip-1", "Asset", "", map[string]interface{}{"title": []string{"Main"}})
	require.NoError(t, err)
	doc.MemberIDs = []string{"inst-1"}
	require.NoError(t, idx.Save(ctx, doc))

	got, err := idx.Get(ctx, "cpb-aacip-1")
	require.NoError(t, err)
	assert.Equal(t, "Asset", got.Model)
	assert.Equal(t, []string{"inst-1"}, got.MemberIDs)
	assert.Equal(t, []interface{}{"Main"}, got.Fields["title"])

	// Saving again replaces the document
	doc.MemberIDs = nil
	require.NoError(t, idx.Save(ctx, doc))
	got, err = idx.Get(ctx, "cpb-aacip-1")
	require.NoError(t, err)
	assert.Empty(t, got.MemberIDs)

	child, err := NewDocument("inst-1", "DigitalInstantiation", "cpb-aacip-1", nil)
	require.NoError(t, err)
	require.NoError(t, idx.Save(ctx, child))

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpb-aacip-1", "inst-1"}, ids)

	require.NoError(t, idx.Delete(ctx, "inst-1"))
	require.NoError(t, idx.Delete(ctx, "inst-1"), "deleting an absent id is not an error")

	_, err = idx.Get(ctx, "inst-1")
	assert.True(t, errors.IsNotFoundError(err))

	assert.Error(t, idx.Save(ctx, Document{}))
}

func TestMemoryIndex(t *testing.T) {
	exerciseIndex(t, NewMemoryIndex())
}

func TestRedisIndex(t *testing.T) {
	addr := os.Getenv("AMS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AMS_TEST_REDIS_ADDR not set")
	}
	idx, err := NewRedisIndex(context.Background(), addr, "ams-test-"+uuid.NewString(), nil)
	require.NoError(t, err)
	defer idx.Close()

	exerciseIndex(t, idx)
}

func TestNewRedisIndexRequiresAddr(t *testing.T) {
	_, err := NewRedisIndex(context.Background(), "", "ams", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestOpen(t *testing.T) {
	idx, err := Open(context.Background(), &am.Config{Index: am.IndexConfig{Backend: am.IndexBackendMemory}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)

	_, err = Open(context.Background(), &am.Config{Index: am.IndexConfig{Backend: "solr"}}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNewDocumentRejectsNonObjects(t *testing.T) {
	_, err := NewDocument("x", "Asset", "", []string{"not", "an", "object"})
	assert.Error(t, err)
}
