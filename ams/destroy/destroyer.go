// Package destroy permanently removes assets with everything they own from
// the primary store, the search index and the relational mirror, and cleans
// up the tombstones and workflow entities they leave behind.
//
// Destruction is best effort. Every step against every object yields a
// types.Outcome; a failed step is logged as
// "Error destroying '<type>' for '<id>'. <Class>: <message>" and the
// destroyer moves on.
package destroy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/mirror"
	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/internal/tracing"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pulse"
)

// Steps, in the order they run for one asset
const (
	StepDeleteAllChildren = "work.delete_all_children"
	StepDelete            = "work.delete"
	StepIndexDelete       = "index.delete"
	StepMirrorDestroy     = "mirror.destroy"
	StepEradicate         = "tombstone.eradicate"
	StepWorkflowDelete    = "workflow.delete"
	StepLookup            = "lookup"
)

// Object types reported for steps that are not about a stored model
const (
	ObjectTombstone      = "Tombstone"
	ObjectWorkflowEntity = "WorkflowEntity"
	ObjectMirror         = "MirrorResource"
)

// Deps are the collaborators of a Destroyer
type Deps struct {
	Store    *storage.DocumentStore
	Index    index.Index
	Mirror   *mirror.Mirror
	Workflow *storage.WorkflowStore
	Users    *storage.UserStore

	// UserEmail identifies the acting user recorded on tombstones
	UserEmail string

	Progress pulse.ProgressEmitter
	Logger   *zap.SugaredLogger
}

// Report collects the outcome of a Destroy or Eradicate run
type Report struct {
	Outcomes []types.Outcome

	// AlreadyGone lists ids found in neither the primary store nor the mirror
	AlreadyGone []string

	// Skipped lists ids Eradicate left alone because they were not tombstoned
	Skipped []string
}

// Failures returns the failed outcomes
func (r *Report) Failures() []types.Outcome {
	return types.Failures(r.Outcomes)
}

// FailedIDs returns the ids with at least one failed step, in first-failure order
func (r *Report) FailedIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range r.Failures() {
		if !seen[o.ID] {
			seen[o.ID] = true
			out = append(out, o.ID)
		}
	}
	return out
}

// Destroyer removes assets
type Destroyer struct {
	deps     Deps
	logger   *zap.SugaredLogger
	progress pulse.ProgressEmitter
}

// New creates a destroyer
func New(deps Deps) *Destroyer {
	return &Destroyer{
		deps:     deps,
		logger:   logger.OrNop(deps.Logger).Named("destroy"),
		progress: pulse.OrNop(deps.Progress),
	}
}

// Destroy removes each asset and everything it owns. Ids are processed
// independently: a failure for one never stops the others. The error is
// non-nil only when the acting user cannot be resolved, before anything is
// deleted.
func (d *Destroyer) Destroy(ctx context.Context, ids []string) (*Report, error) {
	ctx, span := tracing.Start(ctx, "ams.destroy", attribute.Int("destroy.ids", len(ids)))
	defer span.End()

	identity, err := d.identity(ctx)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}

	d.logger.Infof("Initiating destruction sequence for %d Assets...", len(ids))
	d.progress.EmitStage("destroy", fmt.Sprintf("Destroying %d Assets", len(ids)))

	report := &Report{}
	for _, id := range ids {
		d.destroyAsset(ctx, id, identity, report)
		d.progress.EmitProgress(1, map[string]interface{}{"id": id})
	}

	failed := report.FailedIDs()
	span.SetAttributes(attribute.Int("destroy.failed", len(failed)))
	d.progress.EmitComplete(map[string]interface{}{
		"assets":       len(ids),
		"failed":       len(failed),
		"already_gone": len(report.AlreadyGone),
	})
	return report, nil
}

// Eradicate purges the tombstones of assets that were deleted but not
// cleaned up, with their workflow entities. Ids whose lookup does not report a
// tombstone are skipped with a warning.
func (d *Destroyer) Eradicate(ctx context.Context, ids []string) *Report {
	ctx, span := tracing.Start(ctx, "ams.eradicate", attribute.Int("eradicate.ids", len(ids)))
	defer span.End()

	d.logger.Infof("Initiating eradication sequence for %d Asset Tombstones...", len(ids))

	report := &Report{}
	for _, id := range ids {
		_, err := d.deps.Store.Find(ctx, id)
		if !errors.IsGoneError(err) {
			d.logger.Warnf("Lookup of Asset with ID '%s' did not return a Tombstone. Skipping...", id)
			report.Skipped = append(report.Skipped, id)
			continue
		}
		d.purge(ctx, id, report)
	}
	return report
}

func (d *Destroyer) destroyAsset(ctx context.Context, id string, identity types.Identity, report *Report) {
	ctx, span := tracing.Start(ctx, "ams.destroy.asset", attribute.String("asset.id", id))
	defer span.End()

	obj, err := d.deps.Store.Find(ctx, id)
	if err != nil && !errors.IsNotFoundError(err) && !errors.IsGoneError(err) {
		d.record(report, types.Outcome{Step: StepLookup, ObjectType: types.ModelAsset, ID: id, Err: err})
		return
	}

	if obj == nil {
		// Only Exists here: a mirror read would hydrate from the primary store
		mirrored, mErr := d.deps.Mirror.Exists(ctx, id)
		if mErr != nil {
			d.record(report, types.Outcome{Step: StepLookup, ObjectType: ObjectMirror, ID: id, Err: mErr})
			return
		}
		if !mirrored {
			d.logger.Infow("Asset already gone", logger.FieldID, id)
			report.AlreadyGone = append(report.AlreadyGone, id)
			return
		}

		// Mirror only: the primary copy was deleted earlier
		members, mErr := d.deps.Mirror.MemberIDs(ctx, id)
		if mErr != nil {
			d.record(report, types.Outcome{Step: StepLookup, ObjectType: ObjectMirror, ID: id, Err: mErr})
			return
		}
		d.destroyMirror(ctx, id, report)
		for _, memberID := range append([]string{id}, members...) {
			d.purge(ctx, memberID, report)
		}
		return
	}

	// Collected up front, deletion removes the links
	all := []string{id}
	descendants, err := d.deps.Store.Descendants(ctx, id)
	if err != nil {
		d.record(report, types.Outcome{Step: StepLookup, ObjectType: obj.Model, ID: id, Err: err})
		return
	}
	for _, desc := range descendants {
		all = append(all, desc.ID)
	}

	primaryOK := d.destroyPrimary(ctx, obj, identity, report)
	d.destroyMirror(ctx, id, report)
	if !primaryOK {
		return
	}
	for _, memberID := range all {
		d.purge(ctx, memberID, report)
	}
	d.logger.Debugw("Asset destroyed",
		logger.FieldID, id,
		logger.FieldCount, len(all),
	)
}

// destroyPrimary runs the delete pipeline on the primary store and the index.
// Reports whether the root is gone from the primary store.
func (d *Destroyer) destroyPrimary(ctx context.Context, obj *storage.Object, identity types.Identity, report *Report) bool {
	removed, err := d.deps.Store.DeleteAllChildren(ctx, obj.ID, identity.Email)
	d.record(report, types.Outcome{Step: StepDeleteAllChildren, ObjectType: obj.Model, ID: obj.ID, Err: err})
	if err != nil {
		return false
	}
	d.unindex(ctx, removed, obj.Model, report)

	removed, err = d.deps.Store.Delete(ctx, obj.ID, identity.Email)
	d.record(report, types.Outcome{Step: StepDelete, ObjectType: obj.Model, ID: obj.ID, Err: err})
	if err != nil {
		return false
	}
	d.unindex(ctx, removed, obj.Model, report)
	return true
}

func (d *Destroyer) unindex(ctx context.Context, ids []string, model string, report *Report) {
	for _, id := range ids {
		err := d.deps.Index.Delete(ctx, id)
		d.record(report, types.Outcome{Step: StepIndexDelete, ObjectType: model, ID: id, Err: err})
	}
}

func (d *Destroyer) destroyMirror(ctx context.Context, id string, report *Report) {
	err := d.deps.Mirror.Destroy(ctx, id)
	if errors.IsNotFoundError(err) {
		return
	}
	d.record(report, types.Outcome{Step: StepMirrorDestroy, ObjectType: ObjectMirror, ID: id, Err: err})
}

// purge erases the tombstone of id and deletes its workflow entity. A missing
// tombstone or entity leaves nothing to do.
func (d *Destroyer) purge(ctx context.Context, id string, report *Report) {
	err := d.deps.Store.Eradicate(ctx, id)
	if errors.IsNotFoundError(err) {
		d.logger.Debugw("No tombstone to eradicate", logger.FieldID, id)
		err = nil
	}
	d.record(report, types.Outcome{Step: StepEradicate, ObjectType: ObjectTombstone, ID: id, Err: err})

	err = d.deps.Workflow.DeleteForObject(ctx, id)
	if errors.IsNotFoundError(err) {
		d.logger.Debugw("No workflow entity to delete", logger.FieldID, id)
		err = nil
	}
	d.record(report, types.Outcome{Step: StepWorkflowDelete, ObjectType: ObjectWorkflowEntity, ID: id, Err: err})
}

func (d *Destroyer) record(report *Report, o types.Outcome) {
	report.Outcomes = append(report.Outcomes, o)
	if !o.Failed() {
		return
	}
	d.logger.Errorw(fmt.Sprintf("Error destroying '%s' for '%s'. %s", o.ObjectType, o.ID, o.Describe()),
		logger.FieldStep, o.Step,
		logger.FieldObjectType, o.ObjectType,
		logger.FieldID, o.ID,
		logger.FieldErrorClass, errors.ClassName(o.Err),
	)
	d.progress.EmitError(o.Step, o.Err)
}

func (d *Destroyer) identity(ctx context.Context) (types.Identity, error) {
	if d.deps.UserEmail == "" {
		return types.Identity{}, errors.NewInvalidRequestError("destroy requires the email of the acting user")
	}
	identity, err := d.deps.Users.Get(ctx, d.deps.UserEmail)
	if err != nil {
		return types.Identity{}, errors.Wrap(err, "acting user")
	}
	return identity, nil
}
