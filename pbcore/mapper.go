package pbcore

import (
	"strings"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// SonyCiAnnotationType marks asset annotations that carry Sony Ci media ids
const SonyCiAnnotationType = "Sony Ci Video"

// Identifier sources with dedicated asset fields
const (
	sourceNolaCode = "nola code"
	sourceEIDR     = "eidr"
)

// Mapper converts parsed PBCore documents into domain objects
type Mapper struct {
	Authority string
	Policy    UnknownTypePolicy
}

// NewMapper creates a mapper for the given identifier authority
func NewMapper(authority string, policy UnknownTypePolicy) *Mapper {
	return &Mapper{Authority: authority, Policy: policy}
}

// MapAsset maps a description document to an Asset with its contributions and
// instantiations. The asset id is left empty when the document carries no
// identifier from the authority.
func (m *Mapper) MapAsset(doc *DescriptionDocument) (*types.Asset, error) {
	asset := &types.Asset{
		AssetTypes:     trimAll(doc.AssetTypes),
		Genre:          trimAll(doc.Genres),
		Subject:        trimAll(doc.Subjects),
		AudienceLevel:  trimAll(doc.AudienceLevels),
		AudienceRating: trimAll(doc.AudienceRating),
	}
	if id, ok := CanonicalID(doc.Identifiers, m.Authority); ok {
		asset.ID = id
	}

	for _, d := range doc.AssetDates {
		value := strings.TrimSpace(d.Value)
		if value == "" {
			continue
		}
		if err := ValidateDate(value); err != nil {
			return nil, errors.Wrapf(err, "asset date (%s)", d.Type)
		}
		switch strings.ToLower(strings.TrimSpace(d.Type)) {
		case "broadcast":
			asset.BroadcastDates = append(asset.BroadcastDates, value)
		case "created":
			asset.CreatedDates = append(asset.CreatedDates, value)
		case "copyright":
			asset.CopyrightDates = append(asset.CopyrightDates, value)
		default:
			asset.Dates = append(asset.Dates, value)
		}
	}

	for _, id := range LocalIdentifiers(doc.Identifiers, m.Authority) {
		value := strings.TrimSpace(id.Value)
		switch strings.ToLower(strings.TrimSpace(id.Source)) {
		case sourceNolaCode:
			asset.PBSNolaCode = append(asset.PBSNolaCode, value)
		case sourceEIDR:
			asset.EIDRID = append(asset.EIDRID, value)
		default:
			asset.LocalIdentifier = append(asset.LocalIdentifier, value)
		}
	}

	titleValues, titleTypes := make([]string, 0, len(doc.Titles)), make([]string, 0, len(doc.Titles))
	for _, t := range doc.Titles {
		if NormalizeType(t.Type) == "episode_number" {
			asset.EpisodeNumbers = append(asset.EpisodeNumbers, strings.TrimSpace(t.Value))
			continue
		}
		titleValues = append(titleValues, strings.TrimSpace(t.Value))
		titleTypes = append(titleTypes, t.Type)
	}
	titles := Demux(titleValues, titleTypes, m.Policy)
	asset.Title = titles.Default
	asset.EpisodeTitle = titles.Episode
	asset.SegmentTitle = titles.Segment
	asset.RawFootageTitle = titles.RawFootage
	asset.PromoTitle = titles.Promo
	asset.ClipTitle = titles.Clip
	asset.OtherTitle = titles.Other

	descValues, descTypes := make([]string, 0, len(doc.Descriptions)), make([]string, 0, len(doc.Descriptions))
	for _, d := range doc.Descriptions {
		descValues = append(descValues, strings.TrimSpace(d.Value))
		descTypes = append(descTypes, d.Type)
	}
	descs := Demux(descValues, descTypes, m.Policy)
	asset.Description = descs.Default
	asset.EpisodeDescription = descs.Episode
	asset.SegmentDescription = descs.Segment
	asset.RawFootageDescription = descs.RawFootage
	asset.PromoDescription = descs.Promo
	asset.ClipDescription = descs.Clip
	asset.OtherDescription = descs.Other

	for _, c := range doc.Coverages {
		value := strings.TrimSpace(c.Coverage)
		switch strings.ToLower(strings.TrimSpace(c.Type)) {
		case "spatial":
			asset.SpatialCoverage = append(asset.SpatialCoverage, value)
		case "temporal":
			asset.TemporalCoverage = append(asset.TemporalCoverage, value)
		}
	}

	for _, r := range doc.Rights {
		if s := strings.TrimSpace(r.Summary); s != "" {
			asset.RightsSummary = append(asset.RightsSummary, s)
		}
		if l := strings.TrimSpace(r.Link); l != "" {
			asset.RightsLink = append(asset.RightsLink, l)
		}
	}

	for _, c := range doc.Creators {
		if strings.EqualFold(strings.TrimSpace(c.Role), "producing organization") {
			asset.ProducingOrganization = append(asset.ProducingOrganization, strings.TrimSpace(c.Creator))
		}
	}

	for _, c := range doc.Contributors {
		asset.Contributions = append(asset.Contributions, m.MapContribution(c))
	}

	for i := range doc.Instantiations {
		inst, err := m.MapInstantiation(&doc.Instantiations[i])
		if err != nil {
			return nil, errors.Wrapf(err, "instantiation %d", i)
		}
		asset.Instantiations = append(asset.Instantiations, *inst)
	}

	return asset, nil
}

// MapInstantiation maps one instantiation with its essence tracks.
// Ids and parent ids are assigned by the caller.
func (m *Mapper) MapInstantiation(inst *Instantiation) (*types.Instantiation, error) {
	out := &types.Instantiation{
		Kind:                 types.KindPhysical,
		Location:             strings.TrimSpace(inst.Location),
		MediaType:            strings.TrimSpace(inst.MediaType),
		Generations:          trimAll(inst.Generations),
		Duration:             strings.TrimSpace(inst.Duration),
		FileSize:             strings.TrimSpace(inst.FileSize),
		TimeStart:            strings.TrimSpace(inst.TimeStart),
		DataRate:             strings.TrimSpace(inst.DataRate),
		Colors:               strings.TrimSpace(inst.Colors),
		Tracks:               strings.TrimSpace(inst.Tracks),
		ChannelConfiguration: strings.TrimSpace(inst.ChannelConfiguration),
		Language:             trimAll(inst.Languages),
		AlternativeModes:     strings.TrimSpace(inst.AlternativeModes),
	}
	if inst.IsDigital() {
		out.Kind = types.KindDigital
		out.Format = strings.TrimSpace(*inst.Digital)
	} else if inst.Physical != nil {
		out.Format = strings.TrimSpace(*inst.Physical)
	}

	for _, id := range LocalIdentifiers(inst.Identifiers, m.Authority) {
		out.LocalIdentifiers = append(out.LocalIdentifiers, strings.TrimSpace(id.Value))
	}

	for _, d := range inst.Dates {
		value := strings.TrimSpace(d.Value)
		if value == "" {
			continue
		}
		out.Dates = append(out.Dates, value)
	}
	if err := validateDates(out.Dates); err != nil {
		return nil, err
	}

	for _, a := range inst.Annotations {
		out.Annotations = append(out.Annotations, strings.TrimSpace(a.Value))
	}

	for _, et := range inst.EssenceTracks {
		out.EssenceTracks = append(out.EssenceTracks, m.mapEssenceTrack(et))
	}
	return out, nil
}

func (m *Mapper) mapEssenceTrack(et EssenceTrack) types.EssenceTrack {
	track := types.EssenceTrack{
		TrackType:    strings.TrimSpace(et.Type),
		Standard:     strings.TrimSpace(et.Standard),
		Encoding:     strings.TrimSpace(et.Encoding),
		DataRate:     strings.TrimSpace(et.DataRate),
		FrameRate:    strings.TrimSpace(et.FrameRate),
		BitDepth:     strings.TrimSpace(et.BitDepth),
		SamplingRate: strings.TrimSpace(et.SamplingRate),
		FrameSize:    strings.TrimSpace(et.FrameSize),
		AspectRatio:  strings.TrimSpace(et.AspectRatio),
		Duration:     strings.TrimSpace(et.Duration),
		Language:     trimAll(et.Languages),
	}
	for _, id := range et.Identifiers {
		track.TrackIDs = append(track.TrackIDs, strings.TrimSpace(id.Value))
	}
	for _, a := range et.Annotations {
		track.Annotations = append(track.Annotations, strings.TrimSpace(a.Value))
	}
	return track
}

// MapContribution maps a pbcoreContributor
func (m *Mapper) MapContribution(c Contributor) types.Contribution {
	return types.Contribution{
		Contributor: strings.TrimSpace(c.Contributor.Value),
		Role:        strings.TrimSpace(c.Role),
		Affiliation: strings.TrimSpace(c.Contributor.Affiliation),
	}
}

// MapAdminData collects Sony Ci ids and the remaining asset-level annotations
func (m *Mapper) MapAdminData(doc *DescriptionDocument) *types.AdminData {
	ad := &types.AdminData{SonyCiIDs: []string{}}
	for _, a := range doc.Annotations {
		value := strings.TrimSpace(a.Value)
		if strings.EqualFold(strings.TrimSpace(a.Type), SonyCiAnnotationType) {
			if value != "" {
				ad.SonyCiIDs = append(ad.SonyCiIDs, value)
			}
			continue
		}
		ad.Annotations = append(ad.Annotations, types.Annotation{
			Type:  strings.TrimSpace(a.Type),
			Value: value,
			Ref:   strings.TrimSpace(a.Ref),
		})
	}
	return ad
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
