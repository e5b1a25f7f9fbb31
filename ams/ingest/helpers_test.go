package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/ams/authz"
	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/mirror"
	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/ams/types"
	amstest "github.com/teranos/AMS/internal/testing"
	"github.com/teranos/AMS/pbcore"
	"github.com/teranos/AMS/pulse/async"
)

const submitter = "ingester@example.org"

type testEnv struct {
	db    *sql.DB
	deps  *Deps
	index *index.MemoryIndex
	pool  *async.WorkerPool
	batch *types.Batch
}

// newTestEnv wires every store onto one in-memory database. A nil authorizer
// allows everything.
func newTestEnv(t *testing.T, authorizer authz.Authorizer) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := amstest.CreateTestDB(t)

	if authorizer == nil {
		authorizer = authz.AllowAll
	}
	idx := index.NewMemoryIndex()
	store := storage.NewDocumentStore(db, nil)
	m, err := mirror.New(amstest.CreateTestGormDB(t), store, nil)
	require.NoError(t, err)
	deps := &Deps{
		Store:     store,
		Batches:   storage.NewBatchStore(db),
		AdminData: storage.NewAdminDataStore(db),
		Workflow:  storage.NewWorkflowStore(db),
		Users:     storage.NewUserStore(db),
		Index:     idx,
		Mirror:    m,
		Gate:      authz.NewGate(authorizer, nil),
		Mapper:    pbcore.NewMapper(am.DefaultAuthority, pbcore.UnknownDrop),
	}

	registry := async.NewHandlerRegistry()
	RegisterHandlers(registry, deps)
	pool := async.NewWorkerPoolWithRegistry(ctx, db, async.DefaultWorkerPoolConfig(), nil, registry)
	t.Cleanup(pool.Stop)
	deps.Jobs = pool.GetQueue()

	require.NoError(t, deps.Users.Save(ctx, types.Identity{Email: submitter, Roles: []string{"aapb-admin"}}))
	batch := &types.Batch{SubmitterEmail: submitter}
	require.NoError(t, deps.Batches.CreateBatch(ctx, batch))

	return &testEnv{db: db, deps: deps, index: idx, pool: pool, batch: batch}
}

// newItem creates a batch item carrying xml inline
func (e *testEnv) newItem(t *testing.T, idWithinBatch, xml string) *types.BatchItem {
	t.Helper()
	item := &types.BatchItem{BatchID: e.batch.ID, IDWithinBatch: idWithinBatch, SourceData: xml}
	require.NoError(t, e.deps.Batches.CreateItem(context.Background(), item))
	return item
}

// ingestAsset creates the asset from testdata/asset.xml
func (e *testEnv) ingestAsset(t *testing.T) *types.Asset {
	t.Helper()
	item := e.newItem(t, "asset.xml", fixture(t, "asset.xml"))
	asset, err := NewItemIngester(e.deps).Ingest(context.Background(), item)
	require.NoError(t, err)
	return asset
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// localIDs returns the first local identifier of each instantiation
func localIDs(insts []types.Instantiation) []string {
	out := make([]string, 0, len(insts))
	for _, inst := range insts {
		if len(inst.LocalIdentifiers) > 0 {
			out = append(out, inst.LocalIdentifiers[0])
		}
	}
	return out
}
