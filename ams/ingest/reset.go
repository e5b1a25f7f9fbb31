package ingest

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/internal/tracing"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pbcore"
	"github.com/teranos/AMS/pulse/async"
)

// Tear-down steps, as reported in outcomes
const (
	StepStoreDelete    = "store.delete"
	StepIndexDelete    = "index.delete"
	StepWorkflowDelete = "workflow.delete"
	StepMirrorSync     = "mirror.sync"
	StepEnqueue        = "jobs.enqueue"
)

// InstantiationReset replaces every instantiation of an existing asset with
// the instantiations of a new description document. Nothing else about the
// asset changes: scalar fields, contributions and admin data are untouched.
//
// The old instantiations are deleted synchronously, best effort. The new ones
// are created by one async job each, so the returned asset has no
// instantiations until those jobs run.
type InstantiationReset struct {
	deps *Deps

	// Outcomes of the last Apply, tear-down then enqueue.
	// One InstantiationReset must not run resets concurrently.
	Outcomes []types.Outcome
}

// NewInstantiationReset creates an ingester with reset semantics
func NewInstantiationReset(deps *Deps) (*Ingester, *InstantiationReset) {
	reset := &InstantiationReset{deps: deps}
	return New(deps, reset), reset
}

func (r *InstantiationReset) Name() string { return "reset" }

func (r *InstantiationReset) Apply(ctx context.Context, item *types.BatchItem, doc *pbcore.Document, identity types.Identity) (*types.Asset, string, error) {
	if doc.Shape != pbcore.ShapeDescription {
		return nil, "", errors.Wrapf(errors.ErrClassification, "reset requires a description document, got %s", doc.Shape)
	}
	r.Outcomes = nil

	mapped, err := r.deps.Mapper.MapAsset(doc.Description)
	if err != nil {
		return nil, "", err
	}
	if mapped.ID == "" {
		return nil, "", errors.NewNotFoundError("document has no identifier from %s", r.deps.Mapper.Authority)
	}

	ctx, span := tracing.Start(ctx, "ams.reset", attribute.String("asset.id", mapped.ID))
	defer span.End()

	// The mirror read hydrates the asset on first use
	if _, err := r.deps.Mirror.Find(ctx, mapped.ID); err != nil {
		return nil, "", errors.Wrapf(err, "reset target")
	}
	target, err := r.deps.Store.FindAsset(ctx, mapped.ID)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reset target")
	}

	r.Outcomes = append(r.Outcomes, r.tearDown(ctx, target, identity)...)

	if err := indexAsset(ctx, r.deps, target.ID); err != nil {
		return nil, "", err
	}
	err = r.deps.Mirror.Sync(ctx, target.ID)
	r.Outcomes = append(r.Outcomes, r.record(types.Outcome{Step: StepMirrorSync, ObjectType: types.ModelAsset, ID: target.ID, Err: err}))

	digital, physical := pbcore.PartitionInstantiations(doc.Description.Instantiations)
	r.Outcomes = append(r.Outcomes, r.rebuild(ctx, item, target.ID, types.KindDigital, digital)...)
	r.Outcomes = append(r.Outcomes, r.rebuild(ctx, item, target.ID, types.KindPhysical, physical)...)

	span.SetAttributes(
		attribute.Int("reset.removed", len(target.Instantiations)),
		attribute.Int("reset.enqueued", len(digital)+len(physical)),
		attribute.Int("reset.failures", len(types.Failures(r.Outcomes))),
	)

	asset, err := r.deps.Store.FindAsset(ctx, target.ID)
	if err != nil {
		return nil, "", err
	}
	return asset, asset.ID, nil
}

// tearDown deletes each current instantiation from the store, the index and
// the workflow, continuing past failures
func (r *InstantiationReset) tearDown(ctx context.Context, asset *types.Asset, identity types.Identity) []types.Outcome {
	var outcomes []types.Outcome
	for _, inst := range asset.Instantiations {
		model := inst.Model()

		removed, err := r.deps.Store.Delete(ctx, inst.ID, identity.Email)
		outcomes = append(outcomes, r.record(types.Outcome{Step: StepStoreDelete, ObjectType: model, ID: inst.ID, Err: err}))
		if err != nil {
			// Still drop it from the index so search does not show a half-deleted child
			removed = []string{inst.ID}
		}

		for _, id := range removed {
			err := r.deps.Index.Delete(ctx, id)
			outcomes = append(outcomes, r.record(types.Outcome{Step: StepIndexDelete, ObjectType: model, ID: id, Err: err}))

			err = r.deps.Workflow.DeleteForObject(ctx, id)
			if errors.IsNotFoundError(err) {
				err = nil
			}
			outcomes = append(outcomes, r.record(types.Outcome{Step: StepWorkflowDelete, ObjectType: model, ID: id, Err: err}))
		}
	}
	return outcomes
}

// rebuild creates a correlated batch item and one creation job per instantiation
func (r *InstantiationReset) rebuild(ctx context.Context, item *types.BatchItem, parentID string, kind types.InstantiationKind, insts []pbcore.Instantiation) []types.Outcome {
	var outcomes []types.Outcome
	for i := range insts {
		child, err := r.enqueue(ctx, item, parentID, kind, &insts[i])
		id := parentID
		if child != nil {
			id = child.ID
		}
		outcomes = append(outcomes, r.record(types.Outcome{Step: StepEnqueue, ObjectType: kind.Model(), ID: id, Err: err}))

		if err != nil && child != nil {
			if tErr := r.deps.Batches.Transition(ctx, child, types.StatusFailed, err.Error()); tErr != nil {
				r.deps.log().Errorw("Failed to mark correlated batch item failed",
					logger.FieldBatchItemID, child.ID,
					logger.FieldError, tErr,
				)
			}
		}
	}
	return outcomes
}

func (r *InstantiationReset) enqueue(ctx context.Context, item *types.BatchItem, parentID string, kind types.InstantiationKind, inst *pbcore.Instantiation) (*types.BatchItem, error) {
	xml, err := inst.XML()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize instantiation")
	}

	child := &types.BatchItem{
		BatchID:       item.BatchID,
		IDWithinBatch: item.IDWithinBatch,
		SourceData:    string(xml),
	}
	if err := r.deps.Batches.CreateItem(ctx, child); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(InstantiationPayload{
		ParentID:    parentID,
		XML:         string(xml),
		BatchItemID: child.ID,
	})
	if err != nil {
		return child, errors.Wrap(err, "failed to encode job payload")
	}

	job, err := async.NewJobWithPayload(HandlerNameFor(kind), parentID, payload)
	if err != nil {
		return child, err
	}
	if err := r.deps.Jobs.Enqueue(ctx, job); err != nil {
		return child, err
	}

	r.deps.log().Debugw("Enqueued instantiation job",
		logger.FieldJobID, job.ID,
		logger.FieldHandler, job.HandlerName,
		logger.FieldParentID, parentID,
		logger.FieldBatchItemID, child.ID,
	)
	return child, nil
}

// record logs a failed outcome and passes it through
func (r *InstantiationReset) record(o types.Outcome) types.Outcome {
	if o.Failed() {
		r.deps.log().Errorw("Error resetting '"+o.ObjectType+"' for '"+o.ID+"'. "+o.Describe(),
			logger.FieldStep, o.Step,
			logger.FieldObjectType, o.ObjectType,
			logger.FieldID, o.ID,
			logger.FieldErrorClass, errors.ClassName(o.Err),
		)
	}
	return o
}
