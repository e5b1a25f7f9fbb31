package ingest

import (
	"context"
	"encoding/json"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pulse/async"
)

// Handler names of the instantiation creation jobs
const (
	DigitalHandlerName  = "ams.create-digital-instantiation"
	PhysicalHandlerName = "ams.create-physical-instantiation"
)

// HandlerNameFor returns the job handler that creates instantiations of kind
func HandlerNameFor(kind types.InstantiationKind) string {
	if kind == types.KindDigital {
		return DigitalHandlerName
	}
	return PhysicalHandlerName
}

// InstantiationPayload is the job payload for creating one instantiation
type InstantiationPayload struct {
	ParentID    string `json:"parent_id"`
	XML         string `json:"xml"`
	BatchItemID string `json:"batch_item_id"`
}

// InstantiationHandler creates one instantiation from a job payload by
// running its correlated batch item through the create ingester
type InstantiationHandler struct {
	deps *Deps
	kind types.InstantiationKind
}

// NewDigitalInstantiationHandler handles DigitalHandlerName jobs
func NewDigitalInstantiationHandler(deps *Deps) *InstantiationHandler {
	return &InstantiationHandler{deps: deps, kind: types.KindDigital}
}

// NewPhysicalInstantiationHandler handles PhysicalHandlerName jobs
func NewPhysicalInstantiationHandler(deps *Deps) *InstantiationHandler {
	return &InstantiationHandler{deps: deps, kind: types.KindPhysical}
}

func (h *InstantiationHandler) Name() string {
	return HandlerNameFor(h.kind)
}

// Execute creates the instantiation. A batch item that already succeeded is
// left alone, so a redelivered job is a no-op. An item still running was
// interrupted mid-job and is settled instead of ingested again.
func (h *InstantiationHandler) Execute(ctx context.Context, job *async.Job) error {
	var payload InstantiationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "decode payload of job %s: %s", job.ID, err)
	}
	if payload.ParentID == "" || payload.BatchItemID == "" {
		return errors.NewInvalidRequestError("job %s payload needs parent_id and batch_item_id", job.ID)
	}

	ctx = logger.WithJobID(ctx, job.ID)
	log := logger.FromContext(ctx, h.deps.log())

	item, err := h.deps.Batches.GetItem(ctx, payload.BatchItemID)
	if err != nil {
		return err
	}
	if item.Status == types.StatusSuccess {
		log.Infow("Instantiation already created",
			logger.FieldBatchItemID, item.ID,
			logger.FieldID, item.ObjectID,
		)
		return nil
	}
	if item.Status == types.StatusRunning {
		return h.settleInterrupted(ctx, item, payload.ParentID)
	}
	if item.SourceData == "" && item.SourceLocation == "" {
		item.SourceData = payload.XML
	}

	_, err = NewInstantiationIngester(h.deps, payload.ParentID, h.kind).Ingest(ctx, item)
	return err
}

// settleInterrupted finishes an item a crashed worker left running. When the
// recorded object exists only the final transition was lost and the item
// succeeds; otherwise it fails so the missing instantiation is visible.
func (h *InstantiationHandler) settleInterrupted(ctx context.Context, item *types.BatchItem, parentID string) error {
	log := logger.FromContext(ctx, h.deps.log()).With(logger.FieldBatchItemID, item.ID)

	if item.ObjectID != "" {
		_, err := h.deps.Store.Find(ctx, item.ObjectID)
		switch {
		case err == nil:
			if err := h.deps.Batches.Transition(ctx, item, types.StatusSuccess, ""); err != nil {
				return err
			}
			syncMirror(ctx, h.deps, parentID)
			log.Infow("Completed interrupted instantiation", logger.FieldID, item.ObjectID)
			return nil
		case !errors.IsNotFoundError(err) && !errors.IsGoneError(err):
			return err
		}
	}

	cause := errors.WithHint(
		errors.Newf("batch item %s was left running by an interrupted worker", item.ID),
		"reset the asset again to recreate the missing instantiation",
	)
	if err := h.deps.Batches.Transition(ctx, item, types.StatusFailed, cause.Error()); err != nil {
		return err
	}
	log.Warnw("Interrupted instantiation marked failed", logger.FieldParentID, parentID)
	return cause
}

// RegisterHandlers adds the instantiation creation handlers to registry
func RegisterHandlers(registry *async.HandlerRegistry, deps *Deps) {
	registry.Register(NewDigitalInstantiationHandler(deps))
	registry.Register(NewPhysicalInstantiationHandler(deps))
}
