package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// Capability is one (action, resource type) pair
type Capability struct {
	Action       string
	ResourceType string
}

// ingestCreateCapabilities must all hold for an identity to ingest
var ingestCreateCapabilities = []Capability{
	{ActionCreate, types.ModelAsset},
	{ActionCreate, types.ModelDigitalInstantiation},
	{ActionCreate, types.ModelPhysicalInstantiation},
	{ActionCreate, types.ModelEssenceTrack},
	{ActionCreate, types.ModelContribution},
	{ActionCreate, types.ModelAdminData},
	{ActionCreate, types.ModelCollection},
}

// adminDataFieldActions substitute for a blanket update on AdminData when all are granted
var adminDataFieldActions = []string{
	"update_sonyci_id",
	"update_hyrax_batch_ingest_batch_id",
	"update_last_pushed",
	"update_last_updated",
	"update_needs_update",
}

// Gate enforces the ingest permission check
type Gate struct {
	authz  Authorizer
	logger *zap.SugaredLogger
}

// NewGate creates a gate backed by the given authorizer
func NewGate(authz Authorizer, log *zap.SugaredLogger) *Gate {
	return &Gate{authz: authz, logger: logger.OrNop(log)}
}

// RequireIngest returns nil when identity may create every ingestable type and
// update AdminData, either wholesale or through every field-level action.
// Otherwise it returns errors.ErrPermissionDenied naming the missing capability.
func (g *Gate) RequireIngest(ctx context.Context, identity types.Identity) error {
	for _, c := range ingestCreateCapabilities {
		ok, err := g.authz.Authorize(ctx, identity, c.Action, c.ResourceType)
		if err != nil {
			return errors.Wrapf(err, "authorize %s %s", c.Action, c.ResourceType)
		}
		if !ok {
			return g.deny(identity, c)
		}
	}

	ok, err := g.authz.Authorize(ctx, identity, ActionUpdate, types.ModelAdminData)
	if err != nil {
		return errors.Wrapf(err, "authorize %s %s", ActionUpdate, types.ModelAdminData)
	}
	if ok {
		return nil
	}

	for _, action := range adminDataFieldActions {
		ok, err := g.authz.Authorize(ctx, identity, action, types.ModelAdminData)
		if err != nil {
			return errors.Wrapf(err, "authorize %s %s", action, types.ModelAdminData)
		}
		if !ok {
			return g.deny(identity, Capability{action, types.ModelAdminData})
		}
	}
	return nil
}

func (g *Gate) deny(identity types.Identity, missing Capability) error {
	g.logger.Warnw("Ingest permission denied",
		logger.FieldActor, identity.Email,
		logger.FieldOperation, missing.Action,
		logger.FieldObjectType, missing.ResourceType,
	)
	err := errors.Wrapf(errors.ErrPermissionDenied,
		"user %s does not have permission to ingest this record", identity.Email)
	return errors.WithDetailf(err, "missing capability: %s %s", missing.Action, missing.ResourceType)
}
