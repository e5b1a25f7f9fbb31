package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/ams/authz"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/pulse/async"
)

func TestResetReplacesInstantiations(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	original := env.ingestAsset(t)
	before, err := env.deps.Store.FindAsset(ctx, original.ID)
	require.NoError(t, err)
	require.Len(t, before.Instantiations, 2)
	beforeAdmin, err := env.deps.AdminData.GetByGID(ctx, before.AdminDataGID)
	require.NoError(t, err)
	require.NotEmpty(t, beforeAdmin.Annotations)
	require.NotEmpty(t, beforeAdmin.SonyCiIDs)

	item := env.newItem(t, "reset.xml", fixture(t, "reset.xml"))
	ingester, reset := NewInstantiationReset(env.deps)
	asset, err := ingester.Ingest(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "cpb-aacip-123", asset.ID)
	assert.Empty(t, asset.Instantiations, "children are created asynchronously")
	assert.Empty(t, types.Failures(reset.Outcomes))
	assert.Equal(t, types.StatusSuccess, item.Status)
	assert.Equal(t, asset.ID, item.ObjectID)

	for _, old := range before.Instantiations {
		_, err := env.deps.Store.Find(ctx, old.ID)
		assert.True(t, errors.IsGoneError(err), "old instantiation %s is tombstoned", old.ID)
		_, err = env.index.Get(ctx, old.ID)
		assert.True(t, errors.IsNotFoundError(err))
		_, err = env.deps.Workflow.FindForObject(ctx, old.ID)
		assert.True(t, errors.IsNotFoundError(err))
	}

	members, err := env.deps.Mirror.MemberIDs(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1, "only the contribution stays mirrored after tear-down")
	for _, old := range before.Instantiations {
		mirrored, err := env.deps.Mirror.Exists(ctx, old.ID)
		require.NoError(t, err)
		assert.False(t, mirrored, "old instantiation %s is dropped from the mirror", old.ID)
	}

	correlated, err := env.deps.Batches.ItemsByIDWithinBatch(ctx, env.batch.ID, "reset.xml")
	require.NoError(t, err)
	require.Len(t, correlated, 4, "the reset item plus one per new instantiation")

	stats, err := env.pool.GetQueue().GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Queued)

	n, err := env.pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err = env.pool.GetQueue().GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)

	after, err := env.deps.Store.FindAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"reset-dig-1", "reset-dig-2", "reset-phys-1"}, localIDs(after.Instantiations))
	assert.Equal(t, types.KindPhysical, after.Instantiations[2].Kind)
	assert.Len(t, after.Instantiations[0].EssenceTracks, 1)

	// Everything but the instantiations is untouched
	unchanged, rebuilt := *before, *after
	unchanged.Instantiations, rebuilt.Instantiations = nil, nil
	assert.Equal(t, unchanged, rebuilt)

	afterAdmin, err := env.deps.AdminData.GetByGID(ctx, after.AdminDataGID)
	require.NoError(t, err)
	assert.Equal(t, beforeAdmin, afterAdmin)

	// contribution, three instantiations and one essence track
	members, err = env.deps.Mirror.MemberIDs(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, members, 5)
	for _, inst := range after.Instantiations {
		mirrored, err := env.deps.Mirror.Exists(ctx, inst.ID)
		require.NoError(t, err)
		assert.True(t, mirrored, inst.ID)
	}

	correlated, err = env.deps.Batches.ItemsByIDWithinBatch(ctx, env.batch.ID, "reset.xml")
	require.NoError(t, err)
	for _, c := range correlated {
		assert.Equal(t, types.StatusSuccess, c.Status, "item %s", c.ID)
	}

	doc, err := env.index.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, doc.MemberIDs, 4, "contribution and three instantiations")

	// asset, contribution, three instantiations and one essence track
	count, err := env.deps.Workflow.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestResetIsRepeatable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ingestAsset(t)

	for i := 0; i < 2; i++ {
		item := env.newItem(t, "reset.xml", fixture(t, "reset.xml"))
		ingester, _ := NewInstantiationReset(env.deps)
		_, err := ingester.Ingest(ctx, item)
		require.NoError(t, err)
		_, err = env.pool.RunOnce(ctx)
		require.NoError(t, err)
	}

	asset, err := env.deps.Store.FindAsset(ctx, "cpb-aacip-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"reset-dig-1", "reset-dig-2", "reset-phys-1"}, localIDs(asset.Instantiations))
}

func TestResetMissingAsset(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	item := env.newItem(t, "reset.xml", fixture(t, "reset.xml"))
	ingester, _ := NewInstantiationReset(env.deps)
	_, err := ingester.Ingest(ctx, item)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, types.StatusFailed, item.Status)

	stats, err := env.pool.GetQueue().GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	items, err := env.deps.Batches.ListItems(ctx, env.batch.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestResetDeletedAsset(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ingestAsset(t)
	_, err := env.deps.Store.Delete(ctx, "cpb-aacip-123", submitter)
	require.NoError(t, err)

	ingester, _ := NewInstantiationReset(env.deps)
	_, err = ingester.Ingest(ctx, env.newItem(t, "reset.xml", fixture(t, "reset.xml")))
	assert.True(t, errors.IsGoneError(err))
}

func TestResetRejectsInstantiationDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestAsset(t)

	ingester, _ := NewInstantiationReset(env.deps)
	_, err := ingester.Ingest(context.Background(), env.newItem(t, "inst.xml", fixture(t, "instantiation.xml")))
	assert.True(t, errors.Is(err, errors.ErrClassification))
}

func TestResetInvalidDocumentLeavesInstantiations(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ingestAsset(t)

	xml := `<pbcoreDescriptionDocument xmlns="http://www.pbcore.org/PBCore/PBCoreNamespace.html">
  <pbcoreIdentifier source="http://americanarchiveinventory.org">cpb-aacip/123</pbcoreIdentifier>
  <pbcoreAssetDate>not a date</pbcoreAssetDate>
</pbcoreDescriptionDocument>`
	ingester, _ := NewInstantiationReset(env.deps)
	_, err := ingester.Ingest(ctx, env.newItem(t, "bad-reset.xml", xml))
	require.Error(t, err)

	asset, err := env.deps.Store.FindAsset(ctx, "cpb-aacip-123")
	require.NoError(t, err)
	assert.Len(t, asset.Instantiations, 2)
}

func TestResetPermissionDenied(t *testing.T) {
	allowed := true
	authorizer := authz.AuthorizerFunc(func(context.Context, types.Identity, string, string) (bool, error) {
		return allowed, nil
	})
	env := newTestEnv(t, authorizer)
	ctx := context.Background()
	env.ingestAsset(t)

	allowed = false
	ingester, _ := NewInstantiationReset(env.deps)
	_, err := ingester.Ingest(ctx, env.newItem(t, "reset.xml", fixture(t, "reset.xml")))
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))

	asset, err := env.deps.Store.FindAsset(ctx, "cpb-aacip-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"dig-1", "phys-1"}, localIDs(asset.Instantiations))
}

type failingQueue struct{ err error }

func (q failingQueue) Enqueue(context.Context, *async.Job) error { return q.err }

func TestResetEnqueueFailureMarksCorrelatedItemFailed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ingestAsset(t)
	env.deps.Jobs = failingQueue{err: errors.New("queue unavailable")}

	item := env.newItem(t, "reset.xml", fixture(t, "reset.xml"))
	ingester, reset := NewInstantiationReset(env.deps)
	_, err := ingester.Ingest(ctx, item)
	require.NoError(t, err, "enqueue failures are recorded per child")
	assert.Equal(t, types.StatusSuccess, item.Status)

	failures := types.Failures(reset.Outcomes)
	require.Len(t, failures, 3)
	for _, f := range failures {
		assert.Equal(t, StepEnqueue, f.Step)
		assert.Equal(t, "Error: queue unavailable", f.Describe())
	}

	correlated, err := env.deps.Batches.ItemsByIDWithinBatch(ctx, env.batch.ID, "reset.xml")
	require.NoError(t, err)
	require.Len(t, correlated, 4)
	for _, c := range correlated[1:] {
		assert.Equal(t, types.StatusFailed, c.Status)
		assert.Equal(t, "queue unavailable", c.Error)
	}
}
