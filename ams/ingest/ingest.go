// Package ingest turns batch items carrying PBCore XML into persisted assets.
//
// Every ingest runs the same template: the batch item moves to running, its
// source is resolved and parsed, the submitter is authorized, and an Applier
// mutates the stores. The item then ends in success or failed. ItemIngester
// creates new records; InstantiationReset replaces the instantiations of an
// existing asset and fans their re-creation out to async jobs.
package ingest

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/teranos/AMS/ams/authz"
	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/mirror"
	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/internal/tracing"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pbcore"
	"github.com/teranos/AMS/pulse/async"
)

// Enqueuer submits async jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, job *async.Job) error
}

// Deps are the collaborators shared by every ingester
type Deps struct {
	Store     *storage.DocumentStore
	Batches   *storage.BatchStore
	AdminData *storage.AdminDataStore
	Workflow  *storage.WorkflowStore
	Users     *storage.UserStore
	Index     index.Index
	Mirror    *mirror.Mirror
	Gate      *authz.Gate
	Mapper    *pbcore.Mapper
	Jobs      Enqueuer
	Logger    *zap.SugaredLogger
}

func (d *Deps) log() *zap.SugaredLogger {
	return logger.OrNop(d.Logger)
}

// Applier supplies the mutation step of an ingest
type Applier interface {
	// Name labels the ingest variant in logs and spans
	Name() string

	// Apply mutates the stores for a parsed, authorized document. It returns
	// the affected asset and the id of the object the batch item produced.
	Apply(ctx context.Context, item *types.BatchItem, doc *pbcore.Document, identity types.Identity) (*types.Asset, string, error)
}

// Ingester runs the batch item template around an Applier
type Ingester struct {
	deps    *Deps
	applier Applier
}

// New creates an ingester
func New(deps *Deps, applier Applier) *Ingester {
	return &Ingester{deps: deps, applier: applier}
}

// Ingest processes one batch item. Any error moves the item to failed and is
// returned unchanged.
func (in *Ingester) Ingest(ctx context.Context, item *types.BatchItem) (asset *types.Asset, err error) {
	ctx, span := tracing.Start(ctx, "ams.ingest."+in.applier.Name(),
		attribute.String("batch_item.id", item.ID),
		attribute.String("batch.id", item.BatchID),
	)
	defer func() { tracing.End(span, err) }()

	ctx = logger.WithBatchItemID(ctx, item.ID)
	log := logger.FromContext(ctx, in.deps.log()).With(logger.FieldOperation, in.applier.Name())

	if err := in.deps.Batches.Transition(ctx, item, types.StatusRunning, ""); err != nil {
		return nil, err
	}

	asset, objectID, err := in.run(ctx, item)
	if err != nil {
		if tErr := in.deps.Batches.Transition(ctx, item, types.StatusFailed, err.Error()); tErr != nil {
			log.Errorw("Failed to record batch item failure",
				logger.FieldError, tErr,
				"cause", err.Error(),
			)
		}
		log.Warnw("Batch item failed",
			logger.FieldErrorClass, errors.ClassName(err),
			logger.FieldError, err.Error(),
		)
		return nil, err
	}

	if err := in.deps.Batches.SetObjectID(ctx, item, objectID); err != nil {
		return nil, in.fail(ctx, item, err)
	}
	if err := in.deps.Batches.Transition(ctx, item, types.StatusSuccess, ""); err != nil {
		return nil, in.fail(ctx, item, err)
	}

	log.Infow("Batch item ingested", logger.FieldID, objectID)
	return asset, nil
}

func (in *Ingester) run(ctx context.Context, item *types.BatchItem) (*types.Asset, string, error) {
	source, err := ResolveSource(item)
	if err != nil {
		return nil, "", err
	}

	doc, err := pbcore.Parse(source)
	if err != nil {
		return nil, "", err
	}

	identity, err := in.identity(ctx, item)
	if err != nil {
		return nil, "", err
	}
	if err := in.deps.Gate.RequireIngest(ctx, identity); err != nil {
		return nil, "", err
	}

	return in.applier.Apply(ctx, item, doc, identity)
}

func (in *Ingester) fail(ctx context.Context, item *types.BatchItem, err error) error {
	if tErr := in.deps.Batches.Transition(ctx, item, types.StatusFailed, err.Error()); tErr != nil {
		in.deps.log().Errorw("Failed to record batch item failure",
			logger.FieldBatchItemID, item.ID,
			logger.FieldError, tErr,
		)
	}
	return err
}

// identity resolves the submitter of the item's batch
func (in *Ingester) identity(ctx context.Context, item *types.BatchItem) (types.Identity, error) {
	batch, err := in.deps.Batches.GetBatch(ctx, item.BatchID)
	if err != nil {
		return types.Identity{}, errors.Wrapf(err, "batch of item %s", item.ID)
	}
	identity, err := in.deps.Users.Get(ctx, batch.SubmitterEmail)
	if err != nil {
		return types.Identity{}, errors.Wrapf(err, "submitter of batch %s", batch.ID)
	}
	return identity, nil
}

// ResolveSource returns the item's XML. Inline source data wins over the
// source location; an item with neither is errors.ErrSourceMissing.
func ResolveSource(item *types.BatchItem) ([]byte, error) {
	if item.SourceData != "" {
		return []byte(item.SourceData), nil
	}
	if item.SourceLocation == "" {
		return nil, errors.Wrapf(errors.ErrSourceMissing, "batch item %s", item.ID)
	}
	data, err := os.ReadFile(item.SourceLocation)
	if err != nil {
		return nil, errors.WithDetailf(
			errors.Wrapf(err, "failed to read source of batch item %s", item.ID),
			"Source location: %s", item.SourceLocation,
		)
	}
	return data, nil
}
