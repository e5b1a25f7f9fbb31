package storage

import (
	"context"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// CreateAsset inserts the asset row. Children are created separately.
func (s *DocumentStore) CreateAsset(ctx context.Context, asset *types.Asset) error {
	return s.Create(ctx, asset.ID, types.ModelAsset, "", asset)
}

// UpdateAsset replaces the asset's scalar attributes
func (s *DocumentStore) UpdateAsset(ctx context.Context, asset *types.Asset) error {
	return s.Update(ctx, asset.ID, asset)
}

// CreateInstantiation inserts an instantiation row under its parent asset
func (s *DocumentStore) CreateInstantiation(ctx context.Context, inst *types.Instantiation) error {
	return s.Create(ctx, inst.ID, inst.Model(), inst.ParentID, inst)
}

// CreateEssenceTrack inserts an essence track row under its instantiation
func (s *DocumentStore) CreateEssenceTrack(ctx context.Context, track *types.EssenceTrack) error {
	return s.Create(ctx, track.ID, types.ModelEssenceTrack, track.ParentID, track)
}

// CreateContribution inserts a contribution row under its asset
func (s *DocumentStore) CreateContribution(ctx context.Context, c *types.Contribution) error {
	return s.Create(ctx, c.ID, types.ModelContribution, c.ParentID, c)
}

// FindAsset loads an asset with its instantiations, essence tracks and contributions
func (s *DocumentStore) FindAsset(ctx context.Context, id string) (*types.Asset, error) {
	obj, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Model != types.ModelAsset {
		return nil, errors.NewNotFoundError("%s is a %s, not an Asset", id, obj.Model)
	}

	var asset types.Asset
	if err := obj.Decode(&asset); err != nil {
		return nil, err
	}
	asset.ID = obj.ID

	insts, err := s.Instantiations(ctx, id)
	if err != nil {
		return nil, err
	}
	asset.Instantiations = insts

	contribs, err := s.Children(ctx, id, types.ModelContribution)
	if err != nil {
		return nil, err
	}
	for i := range contribs {
		var c types.Contribution
		if err := contribs[i].Decode(&c); err != nil {
			return nil, err
		}
		asset.Contributions = append(asset.Contributions, c)
	}
	return &asset, nil
}

// Instantiations returns the digital and physical instantiations of an asset
// with their essence tracks, in creation order
func (s *DocumentStore) Instantiations(ctx context.Context, assetID string) ([]types.Instantiation, error) {
	objs, err := s.Children(ctx, assetID, types.ModelDigitalInstantiation, types.ModelPhysicalInstantiation)
	if err != nil {
		return nil, err
	}

	out := make([]types.Instantiation, 0, len(objs))
	for i := range objs {
		var inst types.Instantiation
		if err := objs[i].Decode(&inst); err != nil {
			return nil, err
		}
		inst.ID = objs[i].ID
		inst.ParentID = objs[i].ParentID

		tracks, err := s.Children(ctx, inst.ID, types.ModelEssenceTrack)
		if err != nil {
			return nil, err
		}
		for j := range tracks {
			var track types.EssenceTrack
			if err := tracks[j].Decode(&track); err != nil {
				return nil, err
			}
			inst.EssenceTracks = append(inst.EssenceTracks, track)
		}
		out = append(out, inst)
	}
	return out, nil
}
