package destroy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/mirror"
	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	amstest "github.com/teranos/AMS/internal/testing"
)

const actor = "admin@example.org"

type testEnv struct {
	deps Deps
	idx  *index.MemoryIndex
	logs *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := amstest.CreateTestDB(t)
	store := storage.NewDocumentStore(db, nil)

	m, err := mirror.New(amstest.CreateTestGormDB(t), store, nil)
	require.NoError(t, err)

	users := storage.NewUserStore(db)
	require.NoError(t, users.Save(context.Background(), types.Identity{Email: actor, Roles: []string{"admin"}}))

	core, logs := observer.New(zapcore.DebugLevel)
	idx := index.NewMemoryIndex()
	return &testEnv{
		deps: Deps{
			Store:     store,
			Index:     idx,
			Mirror:    m,
			Workflow:  storage.NewWorkflowStore(db),
			Users:     users,
			UserEmail: actor,
			Logger:    zap.New(core).Sugar(),
		},
		idx:  idx,
		logs: logs,
	}
}

// seed creates an asset with one instantiation, one essence track and one
// contribution, tracked and indexed. Returns every id, asset first.
func (e *testEnv) seed(t *testing.T, id string) []string {
	t.Helper()
	ctx := context.Background()

	inst := &types.Instantiation{ID: uuid.NewString(), ParentID: id, Kind: types.KindDigital}
	track := &types.EssenceTrack{ID: uuid.NewString(), ParentID: inst.ID}
	contrib := &types.Contribution{ID: uuid.NewString(), ParentID: id, Contributor: "Jane Anchor"}

	require.NoError(t, e.deps.Store.CreateAsset(ctx, &types.Asset{ID: id, Title: []string{"Title " + id}}))
	require.NoError(t, e.deps.Store.CreateInstantiation(ctx, inst))
	require.NoError(t, e.deps.Store.CreateEssenceTrack(ctx, track))
	require.NoError(t, e.deps.Store.CreateContribution(ctx, contrib))

	objects := []struct{ id, model, parent string }{
		{id, types.ModelAsset, ""},
		{inst.ID, types.ModelDigitalInstantiation, id},
		{track.ID, types.ModelEssenceTrack, inst.ID},
		{contrib.ID, types.ModelContribution, id},
	}
	ids := make([]string, 0, len(objects))
	for _, o := range objects {
		_, err := e.deps.Workflow.Create(ctx, o.model, o.id)
		require.NoError(t, err)
		doc, err := index.NewDocument(o.id, o.model, o.parent, nil)
		require.NoError(t, err)
		require.NoError(t, e.idx.Save(ctx, doc))
		ids = append(ids, o.id)
	}
	return ids
}

// requireErased checks that nothing of an object survives anywhere
func (e *testEnv) requireErased(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.deps.Store.Find(ctx, id)
	assert.True(t, errors.IsNotFoundError(err), "%s still in the store: %v", id, err)
	_, err = e.deps.Store.Tombstone(ctx, id)
	assert.True(t, errors.IsNotFoundError(err), "%s still tombstoned", id)
	_, err = e.idx.Get(ctx, id)
	assert.True(t, errors.IsNotFoundError(err), "%s still indexed", id)
	_, err = e.deps.Workflow.FindForObject(ctx, id)
	assert.True(t, errors.IsNotFoundError(err), "%s still has a workflow entity", id)
	mirrored, err := e.deps.Mirror.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, mirrored, "%s still mirrored", id)
}

type failingIndex struct {
	index.Index
	failID string
}

func (f failingIndex) Delete(ctx context.Context, id string) error {
	if id == f.failID {
		return errors.New("index unavailable")
	}
	return f.Index.Delete(ctx, id)
}

type countingEmitter struct {
	progress int
	errors   int
	complete map[string]interface{}
}

func (c *countingEmitter) EmitStage(string, string) {}
func (c *countingEmitter) EmitInfo(string)          {}

func (c *countingEmitter) EmitProgress(n int, _ map[string]interface{}) { c.progress += n }

func (c *countingEmitter) EmitComplete(summary map[string]interface{}) { c.complete = summary }

func (c *countingEmitter) EmitError(string, error) { c.errors++ }

func TestDestroyErasesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ids := env.seed(t, "cpb-aacip-100")
	_, err := env.deps.Mirror.Find(ctx, "cpb-aacip-100")
	require.NoError(t, err)

	report, err := New(env.deps).Destroy(ctx, []string{"cpb-aacip-100"})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())
	assert.Empty(t, report.AlreadyGone)

	for _, id := range ids {
		env.requireErased(t, id)
	}
	n, err := env.deps.Workflow.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, StepDeleteAllChildren, report.Outcomes[0].Step)
	assert.Equal(t, types.ModelAsset, report.Outcomes[0].ObjectType)
}

func TestDestroyContinuesPastCorrelationAmbiguity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	x := env.seed(t, "cpb-aacip-100")
	y := env.seed(t, "cpb-aacip-200")
	z := env.seed(t, "cpb-aacip-300")
	// A second entity shadowing the same id, so Y's cannot be told apart
	_, err := env.deps.Workflow.Create(ctx, types.ModelContribution, "cpb-aacip-200")
	require.NoError(t, err)

	emitter := &countingEmitter{}
	env.deps.Progress = emitter
	report, err := New(env.deps).Destroy(ctx, []string{x[0], y[0], z[0]})
	require.NoError(t, err)

	for _, id := range append(x, z...) {
		env.requireErased(t, id)
	}

	assert.Equal(t, []string{"cpb-aacip-200"}, report.FailedIDs())
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, StepWorkflowDelete, failures[0].Step)
	assert.Equal(t, ObjectWorkflowEntity, failures[0].ObjectType)
	assert.True(t, errors.Is(failures[0].Err, errors.ErrCorrelationAmbiguity))

	logged := env.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0].Message, "Error destroying 'WorkflowEntity' for 'cpb-aacip-200'. CorrelationAmbiguity: ")
	assert.Equal(t, "cpb-aacip-200", logged[0].ContextMap()["id"])

	// The rest of Y is still cleaned up
	for _, id := range y[1:] {
		env.requireErased(t, id)
	}

	assert.Equal(t, 3, emitter.progress)
	assert.Equal(t, 1, emitter.errors)
	assert.Equal(t, 1, emitter.complete["failed"])
}

func TestDestroyLeavesPrefixCollidingAssets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	target := env.seed(t, "cpb-aacip-123")
	neighbour := env.seed(t, "cpb-aacip-1234")

	report, err := New(env.deps).Destroy(ctx, []string{"cpb-aacip-123"})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())

	for _, id := range target {
		env.requireErased(t, id)
	}
	for _, id := range neighbour {
		_, err := env.deps.Workflow.FindForObject(ctx, id)
		assert.NoError(t, err, "%s keeps its workflow entity", id)
	}
	_, err = env.deps.Store.FindAsset(ctx, "cpb-aacip-1234")
	assert.NoError(t, err)

	n, err := env.deps.Workflow.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(neighbour), n)
}

func TestDestroyContinuesPastIndexFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	x := env.seed(t, "cpb-aacip-100")
	y := env.seed(t, "cpb-aacip-200")
	z := env.seed(t, "cpb-aacip-300")
	env.deps.Index = failingIndex{Index: env.idx, failID: y[0]}

	report, err := New(env.deps).Destroy(ctx, []string{x[0], y[0], z[0]})
	require.NoError(t, err)

	for _, id := range append(x, z...) {
		env.requireErased(t, id)
	}
	assert.Equal(t, []string{y[0]}, report.FailedIDs())
	assert.Equal(t, StepIndexDelete, report.Failures()[0].Step)

	// Y is gone from the store even though its index document is stale
	_, err = env.deps.Store.Find(ctx, y[0])
	assert.True(t, errors.IsNotFoundError(err))
	_, err = env.idx.Get(ctx, y[0])
	assert.NoError(t, err)
}

func TestDestroyAlreadyGone(t *testing.T) {
	env := newTestEnv(t)

	report, err := New(env.deps).Destroy(context.Background(), []string{"cpb-aacip-404"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cpb-aacip-404"}, report.AlreadyGone)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 1, env.logs.FilterMessage("Asset already gone").Len())
}

func TestDestroyMirrorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ids := env.seed(t, "cpb-aacip-100")
	_, err := env.deps.Mirror.Find(ctx, "cpb-aacip-100")
	require.NoError(t, err)
	_, err = env.deps.Store.Delete(ctx, "cpb-aacip-100", actor)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, env.idx.Delete(ctx, id))
	}

	report, err := New(env.deps).Destroy(ctx, []string{"cpb-aacip-100"})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())
	assert.Empty(t, report.AlreadyGone)

	for _, id := range ids {
		env.requireErased(t, id)
	}
}

func TestDestroyRequiresActingUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "cpb-aacip-100")

	deps := env.deps
	deps.UserEmail = ""
	_, err := New(deps).Destroy(ctx, []string{"cpb-aacip-100"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	deps.UserEmail = "ghost@example.org"
	_, err = New(deps).Destroy(ctx, []string{"cpb-aacip-100"})
	assert.True(t, errors.IsNotFoundError(err))

	_, err = env.deps.Store.Find(ctx, "cpb-aacip-100")
	assert.NoError(t, err, "nothing is deleted without an acting user")
}

func TestDestroyRecordsActingUserOnTombstones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "cpb-aacip-100")

	// Keep the tombstone around to inspect it
	deps := env.deps
	d := New(deps)
	obj, err := deps.Store.Find(ctx, "cpb-aacip-100")
	require.NoError(t, err)
	report := &Report{}
	require.True(t, d.destroyPrimary(ctx, obj, types.Identity{Email: actor}, report))

	ts, err := deps.Store.Tombstone(ctx, "cpb-aacip-100")
	require.NoError(t, err)
	assert.Equal(t, actor, ts.DeletedBy)
	assert.Empty(t, report.Failures())
}

func TestEradicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deleted := env.seed(t, "cpb-aacip-100")
	env.seed(t, "cpb-aacip-200")
	_, err := env.deps.Store.Delete(ctx, deleted[0], actor)
	require.NoError(t, err)

	report := New(env.deps).Eradicate(ctx, []string{"cpb-aacip-100", "cpb-aacip-200", "cpb-aacip-404"})
	assert.Empty(t, report.Failures())
	assert.Equal(t, []string{"cpb-aacip-200", "cpb-aacip-404"}, report.Skipped)

	_, err = env.deps.Store.Tombstone(ctx, "cpb-aacip-100")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = env.deps.Workflow.FindForObject(ctx, "cpb-aacip-100")
	assert.True(t, errors.IsNotFoundError(err))

	// Untouched
	_, err = env.deps.Store.Find(ctx, "cpb-aacip-200")
	assert.NoError(t, err)
	_, err = env.deps.Workflow.FindForObject(ctx, "cpb-aacip-200")
	assert.NoError(t, err)

	warnings := env.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 2)
	assert.Equal(t, "Lookup of Asset with ID 'cpb-aacip-200' did not return a Tombstone. Skipping...", warnings[0].Message)
}
