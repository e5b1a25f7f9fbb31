// Package types defines the AMS domain model: batches and their items, the
// Asset aggregate with its instantiations, essence tracks and contributions,
// administrative data, and workflow entities.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/AMS/errors"
)

// Model names resource types as they appear in storage, global ids and grants
const (
	ModelAsset                 = "Asset"
	ModelDigitalInstantiation  = "DigitalInstantiation"
	ModelPhysicalInstantiation = "PhysicalInstantiation"
	ModelEssenceTrack          = "EssenceTrack"
	ModelContribution          = "Contribution"
	ModelAdminData             = "AdminData"
	ModelCollection            = "Collection"
)

// GlobalIDApp is the application segment of every global id
const GlobalIDApp = "ams"

// GlobalID returns the global id of an object, e.g. gid://ams/Asset/cpb-aacip-123
func GlobalID(model, id string) string {
	return fmt.Sprintf("gid://%s/%s/%s", GlobalIDApp, model, id)
}

// InstantiationKind distinguishes digital from physical instantiations
type InstantiationKind string

const (
	KindDigital  InstantiationKind = "digital"
	KindPhysical InstantiationKind = "physical"
)

// Model returns the storage model for the kind
func (k InstantiationKind) Model() string {
	if k == KindDigital {
		return ModelDigitalInstantiation
	}
	return ModelPhysicalInstantiation
}

// KindForModel maps an instantiation model back to its kind
func KindForModel(model string) (InstantiationKind, bool) {
	switch model {
	case ModelDigitalInstantiation:
		return KindDigital, true
	case ModelPhysicalInstantiation:
		return KindPhysical, true
	default:
		return "", false
	}
}

// Batch groups batch items submitted together by one user
type Batch struct {
	ID             string    `json:"id"`
	SubmitterEmail string    `json:"submitter_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// BatchItemStatus is the lifecycle state of a batch item
type BatchItemStatus string

const (
	StatusInitialized BatchItemStatus = "initialized"
	StatusRunning     BatchItemStatus = "running"
	StatusSuccess     BatchItemStatus = "success"
	StatusFailed      BatchItemStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s BatchItemStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether a batch item may move from one status to another.
// initialized -> running | failed, running -> success | failed.
func CanTransition(from, to BatchItemStatus) bool {
	switch from {
	case StatusInitialized:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusSuccess || to == StatusFailed
	default:
		return false
	}
}

// BatchItem is one unit of work within a batch.
// At most one of SourceData and SourceLocation is meaningful; SourceData wins.
type BatchItem struct {
	ID             string          `json:"id"`
	BatchID        string          `json:"batch_id"`
	IDWithinBatch  string          `json:"id_within_batch"`
	Status         BatchItemStatus `json:"status"`
	SourceData     string          `json:"source_data,omitempty"`
	SourceLocation string          `json:"source_location,omitempty"`
	Error          string          `json:"error,omitempty"`
	ObjectID       string          `json:"object_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Asset is the root of a PBCore aggregate
type Asset struct {
	ID                    string   `json:"id"`
	AssetTypes            []string `json:"asset_types,omitempty"`
	Genre                 []string `json:"genre,omitempty"`
	Dates                 []string `json:"date,omitempty"`
	BroadcastDates        []string `json:"broadcast_date,omitempty"`
	CreatedDates          []string `json:"created_date,omitempty"`
	CopyrightDates        []string `json:"copyright_date,omitempty"`
	EpisodeNumbers        []string `json:"episode_number,omitempty"`
	SpatialCoverage       []string `json:"spatial_coverage,omitempty"`
	TemporalCoverage      []string `json:"temporal_coverage,omitempty"`
	AudienceLevel         []string `json:"audience_level,omitempty"`
	AudienceRating        []string `json:"audience_rating,omitempty"`
	RightsSummary         []string `json:"rights_summary,omitempty"`
	RightsLink            []string `json:"rights_link,omitempty"`
	LocalIdentifier       []string `json:"local_identifier,omitempty"`
	PBSNolaCode           []string `json:"pbs_nola_code,omitempty"`
	EIDRID                []string `json:"eidr_id,omitempty"`
	Subject               []string `json:"subject,omitempty"`
	ProducingOrganization []string `json:"producing_organization,omitempty"`

	Title           []string `json:"title,omitempty"`
	EpisodeTitle    []string `json:"episode_title,omitempty"`
	SegmentTitle    []string `json:"segment_title,omitempty"`
	RawFootageTitle []string `json:"raw_footage_title,omitempty"`
	PromoTitle      []string `json:"promo_title,omitempty"`
	ClipTitle       []string `json:"clip_title,omitempty"`
	OtherTitle      []string `json:"other_title,omitempty"`

	Description           []string `json:"description,omitempty"`
	EpisodeDescription    []string `json:"episode_description,omitempty"`
	SegmentDescription    []string `json:"segment_description,omitempty"`
	RawFootageDescription []string `json:"raw_footage_description,omitempty"`
	PromoDescription      []string `json:"promo_description,omitempty"`
	ClipDescription       []string `json:"clip_description,omitempty"`
	OtherDescription      []string `json:"other_description,omitempty"`

	AdminDataGID string `json:"admin_data_gid,omitempty"`
	Depositor    string `json:"depositor,omitempty"`

	// Owned children, persisted as separate objects
	Instantiations []Instantiation `json:"-"`
	Contributions  []Contribution  `json:"-"`
}

// Instantiation is a digital or physical manifestation of an Asset
type Instantiation struct {
	ID                   string            `json:"id"`
	ParentID             string            `json:"parent_id"`
	Kind                 InstantiationKind `json:"kind"`
	LocalIdentifiers     []string          `json:"local_instantiation_identifier,omitempty"`
	Format               string            `json:"format,omitempty"`
	Location             string            `json:"location,omitempty"`
	MediaType            string            `json:"media_type,omitempty"`
	Generations          []string          `json:"generations,omitempty"`
	Duration             string            `json:"duration,omitempty"`
	FileSize             string            `json:"file_size,omitempty"`
	TimeStart            string            `json:"time_start,omitempty"`
	DataRate             string            `json:"data_rate,omitempty"`
	Colors               string            `json:"colors,omitempty"`
	Tracks               string            `json:"tracks,omitempty"`
	ChannelConfiguration string            `json:"channel_configuration,omitempty"`
	Language             []string          `json:"language,omitempty"`
	AlternativeModes     string            `json:"alternative_modes,omitempty"`
	Dates                []string          `json:"date,omitempty"`
	Annotations          []string          `json:"annotation,omitempty"`

	EssenceTracks []EssenceTrack `json:"-"`
}

// Model returns the storage model of the instantiation
func (i *Instantiation) Model() string {
	return i.Kind.Model()
}

// EssenceTrack describes one track within an instantiation
type EssenceTrack struct {
	ID           string   `json:"id"`
	ParentID     string   `json:"parent_id"`
	TrackType    string   `json:"track_type,omitempty"`
	TrackIDs     []string `json:"track_id,omitempty"`
	Standard     string   `json:"standard,omitempty"`
	Encoding     string   `json:"encoding,omitempty"`
	DataRate     string   `json:"data_rate,omitempty"`
	FrameRate    string   `json:"frame_rate,omitempty"`
	BitDepth     string   `json:"bit_depth,omitempty"`
	SamplingRate string   `json:"sample_rate,omitempty"`
	FrameSize    string   `json:"frame_size,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Language     []string `json:"language,omitempty"`
	Annotations  []string `json:"annotation,omitempty"`
}

// Contribution credits a contributor on an Asset
type Contribution struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Contributor string `json:"contributor"`
	Role        string `json:"contributor_role,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
}

// AdminData holds administrative metadata attached to an Asset by weak reference
type AdminData struct {
	ID          int64        `json:"id"`
	SonyCiIDs   []string     `json:"sonyci_id"`
	BatchID     string       `json:"hyrax_batch_ingest_batch_id,omitempty"`
	LastPushed  *time.Time   `json:"last_pushed,omitempty"`
	LastUpdated *time.Time   `json:"last_updated,omitempty"`
	NeedsUpdate bool         `json:"needs_update"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

const adminDataGIDPrefix = "gid://ams/admindata/"

// GID returns the global id of the admin data, or "" when unsaved
func (a *AdminData) GID() string {
	if a.ID == 0 {
		return ""
	}
	return adminDataGIDPrefix + strconv.FormatInt(a.ID, 10)
}

// ParseAdminDataGID extracts the admin data id from a gid like gid://ams/admindata/1
func ParseAdminDataGID(gid string) (int64, error) {
	if !strings.HasPrefix(gid, adminDataGIDPrefix) {
		return 0, errors.NewInvalidRequestError("not an admin data gid: %q", gid)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(gid, adminDataGIDPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequestError("invalid admin data gid: %q", gid)
	}
	return id, nil
}

// Annotation is a typed note owned by AdminData
type Annotation struct {
	ID          int64  `json:"id,omitempty"`
	AdminDataID int64  `json:"admin_data_id,omitempty"`
	Type        string `json:"annotation_type"`
	Value       string `json:"value"`
	Ref         string `json:"ref,omitempty"`
	Source      string `json:"source,omitempty"`
	Annotation  string `json:"annotation,omitempty"`
	Version     string `json:"version,omitempty"`
}

// WorkflowEntity tracks the review workflow state of one object by its global id
type WorkflowEntity struct {
	ID               int64     `json:"id"`
	ProxyForGlobalID string    `json:"proxy_for_global_id"`
	WorkflowState    string    `json:"workflow_state"`
	CreatedAt        time.Time `json:"created_at"`
}

// Tombstone marks an object whose content was hard-deleted
type Tombstone struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	DeletedBy string    `json:"deleted_by,omitempty"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Identity is the acting user, resolved from the submitter email
type Identity struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}
