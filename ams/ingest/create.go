package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pbcore"
)

// CanonicalIDPrefix prefixes ids minted for documents without an authority identifier
const CanonicalIDPrefix = "cpb-aacip-"

// ItemIngester applies create semantics.
//
// A description document creates a new asset with its admin data,
// contributions and instantiations. An instantiation document creates one
// instantiation under ParentID, which must be set; Kind, when set, must match
// the document.
type ItemIngester struct {
	deps     *Deps
	ParentID string
	Kind     types.InstantiationKind
}

// NewItemIngester creates an ingester with create semantics
func NewItemIngester(deps *Deps) *Ingester {
	return New(deps, &ItemIngester{deps: deps})
}

// NewInstantiationIngester creates an ingester that adds one instantiation of
// kind to parentID
func NewInstantiationIngester(deps *Deps, parentID string, kind types.InstantiationKind) *Ingester {
	return New(deps, &ItemIngester{deps: deps, ParentID: parentID, Kind: kind})
}

func (c *ItemIngester) Name() string { return "create" }

func (c *ItemIngester) Apply(ctx context.Context, item *types.BatchItem, doc *pbcore.Document, identity types.Identity) (*types.Asset, string, error) {
	switch doc.Shape {
	case pbcore.ShapeDescription:
		if c.ParentID != "" {
			return nil, "", errors.Wrapf(errors.ErrClassification, "expected an instantiation document for parent %s", c.ParentID)
		}
		asset, err := c.createAsset(ctx, item, doc.Description, identity)
		if err != nil {
			return nil, "", err
		}
		return asset, asset.ID, nil
	case pbcore.ShapeInstantiation:
		return c.addInstantiation(ctx, doc.Instantiation)
	default:
		return nil, "", errors.Wrapf(errors.ErrClassification, "shape %s", doc.Shape)
	}
}

func (c *ItemIngester) createAsset(ctx context.Context, item *types.BatchItem, doc *pbcore.DescriptionDocument, identity types.Identity) (*types.Asset, error) {
	asset, err := c.deps.Mapper.MapAsset(doc)
	if err != nil {
		return nil, err
	}
	if asset.ID == "" {
		asset.ID = CanonicalIDPrefix + uuid.NewString()
	}

	if err := c.rejectExisting(ctx, asset.ID); err != nil {
		return nil, err
	}

	ad := c.deps.Mapper.MapAdminData(doc)
	ad.BatchID = item.BatchID
	if err := c.deps.AdminData.Create(ctx, ad); err != nil {
		return nil, err
	}
	asset.AdminDataGID = ad.GID()
	asset.Depositor = identity.Email

	if err := c.deps.Store.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	if err := track(ctx, c.deps, types.ModelAsset, asset.ID); err != nil {
		return nil, err
	}

	for i := range asset.Contributions {
		contrib := &asset.Contributions[i]
		contrib.ID = uuid.NewString()
		contrib.ParentID = asset.ID
		if err := c.deps.Store.CreateContribution(ctx, contrib); err != nil {
			return nil, err
		}
		if err := track(ctx, c.deps, types.ModelContribution, contrib.ID); err != nil {
			return nil, err
		}
		if err := indexObject(ctx, c.deps, contrib.ID, types.ModelContribution, asset.ID, contrib); err != nil {
			return nil, err
		}
	}

	for i := range asset.Instantiations {
		if err := createInstantiation(ctx, c.deps, asset.ID, &asset.Instantiations[i]); err != nil {
			return nil, err
		}
	}

	if err := indexAsset(ctx, c.deps, asset.ID); err != nil {
		return nil, err
	}
	syncMirror(ctx, c.deps, asset.ID)
	return asset, nil
}

// rejectExisting fails when id already names an asset or its tombstone
func (c *ItemIngester) rejectExisting(ctx context.Context, id string) error {
	_, err := c.deps.Store.Find(ctx, id)
	switch {
	case err == nil:
		return errors.WithDetailf(
			errors.Wrapf(errors.ErrRecordExists, "asset %s", id),
			"Asset ID: %s", id,
		)
	case errors.IsGoneError(err):
		return errors.WithHint(err, "eradicate the tombstone before re-ingesting this asset")
	case errors.IsNotFoundError(err):
		return nil
	default:
		return err
	}
}

func (c *ItemIngester) addInstantiation(ctx context.Context, doc *pbcore.InstantiationDocument) (*types.Asset, string, error) {
	if c.ParentID == "" {
		return nil, "", errors.NewInvalidRequestError("instantiation document requires a parent asset")
	}
	if _, err := c.deps.Store.FindAsset(ctx, c.ParentID); err != nil {
		return nil, "", errors.Wrapf(err, "parent asset %s", c.ParentID)
	}

	inst, err := c.deps.Mapper.MapInstantiation(&doc.Instantiation)
	if err != nil {
		return nil, "", err
	}
	if c.Kind != "" && inst.Kind != c.Kind {
		return nil, "", errors.NewInvalidRequestError("expected a %s instantiation, document is %s", c.Kind, inst.Kind)
	}

	if err := createInstantiation(ctx, c.deps, c.ParentID, inst); err != nil {
		return nil, "", err
	}
	if err := indexAsset(ctx, c.deps, c.ParentID); err != nil {
		return nil, "", err
	}
	syncMirror(ctx, c.deps, c.ParentID)

	parent, err := c.deps.Store.FindAsset(ctx, c.ParentID)
	if err != nil {
		return nil, "", err
	}
	return parent, inst.ID, nil
}

// createInstantiation persists, tracks and indexes an instantiation and its
// essence tracks under parentID, assigning fresh ids
func createInstantiation(ctx context.Context, deps *Deps, parentID string, inst *types.Instantiation) error {
	inst.ID = uuid.NewString()
	inst.ParentID = parentID
	if err := deps.Store.CreateInstantiation(ctx, inst); err != nil {
		return err
	}
	if err := track(ctx, deps, inst.Model(), inst.ID); err != nil {
		return err
	}

	memberIDs := make([]string, 0, len(inst.EssenceTracks))
	for i := range inst.EssenceTracks {
		et := &inst.EssenceTracks[i]
		et.ID = uuid.NewString()
		et.ParentID = inst.ID
		if err := deps.Store.CreateEssenceTrack(ctx, et); err != nil {
			return err
		}
		if err := track(ctx, deps, types.ModelEssenceTrack, et.ID); err != nil {
			return err
		}
		if err := indexObject(ctx, deps, et.ID, types.ModelEssenceTrack, inst.ID, et); err != nil {
			return err
		}
		memberIDs = append(memberIDs, et.ID)
	}

	doc, err := index.NewDocument(inst.ID, inst.Model(), parentID, inst)
	if err != nil {
		return err
	}
	doc.MemberIDs = memberIDs
	if err := deps.Index.Save(ctx, doc); err != nil {
		return errors.Wrapf(err, "failed to index %s %s", inst.Model(), inst.ID)
	}

	deps.log().Debugw("Created instantiation",
		logger.FieldID, inst.ID,
		logger.FieldObjectType, inst.Model(),
		logger.FieldParentID, parentID,
		logger.FieldCount, len(inst.EssenceTracks),
	)
	return nil
}

// track creates the workflow entity shadowing a new object
func track(ctx context.Context, deps *Deps, model, id string) error {
	_, err := deps.Workflow.Create(ctx, model, id)
	return err
}

func indexObject(ctx context.Context, deps *Deps, id, model, parentID string, attrs interface{}) error {
	doc, err := index.NewDocument(id, model, parentID, attrs)
	if err != nil {
		return err
	}
	if err := deps.Index.Save(ctx, doc); err != nil {
		return errors.Wrapf(err, "failed to index %s %s", model, id)
	}
	return nil
}

// syncMirror re-copies the asset's tree into the mirror. A failure is logged
// and leaves the primary change in place; the next sync or destroy repairs it.
func syncMirror(ctx context.Context, deps *Deps, assetID string) {
	if err := deps.Mirror.Sync(ctx, assetID); err != nil {
		deps.log().Warnw("Failed to sync mirror",
			logger.FieldID, assetID,
			logger.FieldErrorClass, errors.ClassName(err),
			logger.FieldError, err.Error(),
		)
	}
}

// indexAsset re-saves the asset's index document with its current member ids
func indexAsset(ctx context.Context, deps *Deps, assetID string) error {
	obj, err := deps.Store.Find(ctx, assetID)
	if err != nil {
		return err
	}
	children, err := deps.Store.Children(ctx, assetID)
	if err != nil {
		return err
	}

	doc, err := index.NewDocument(obj.ID, obj.Model, "", obj.Attrs)
	if err != nil {
		return err
	}
	doc.MemberIDs = make([]string, 0, len(children))
	for _, child := range children {
		doc.MemberIDs = append(doc.MemberIDs, child.ID)
	}
	if err := deps.Index.Save(ctx, doc); err != nil {
		return errors.Wrapf(err, "failed to index asset %s", assetID)
	}
	return nil
}
