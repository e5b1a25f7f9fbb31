// Package pbcore classifies PBCore XML documents and maps them onto the AMS
// domain model.
package pbcore

import "encoding/xml"

// Namespace is the PBCore 2 XML namespace
const Namespace = "http://www.pbcore.org/PBCore/PBCoreNamespace.html"

// Root element local names
const (
	rootDescription   = "pbcoreDescriptionDocument"
	rootInstantiation = "pbcoreInstantiationDocument"
)

// DescriptionDocument is a pbcoreDescriptionDocument: one Asset and its children
type DescriptionDocument struct {
	XMLName        xml.Name        `xml:"pbcoreDescriptionDocument"`
	AssetTypes     []string        `xml:"pbcoreAssetType"`
	AssetDates     []Date          `xml:"pbcoreAssetDate"`
	Identifiers    []Identifier    `xml:"pbcoreIdentifier"`
	Titles         []Title         `xml:"pbcoreTitle"`
	Subjects       []string        `xml:"pbcoreSubject"`
	Descriptions   []Description   `xml:"pbcoreDescription"`
	Genres         []string        `xml:"pbcoreGenre"`
	Coverages      []Coverage      `xml:"pbcoreCoverage"`
	AudienceLevels []string        `xml:"pbcoreAudienceLevel"`
	AudienceRating []string        `xml:"pbcoreAudienceRating"`
	Creators       []Creator       `xml:"pbcoreCreator"`
	Contributors   []Contributor   `xml:"pbcoreContributor"`
	Rights         []RightsSummary `xml:"pbcoreRightsSummary"`
	Instantiations []Instantiation `xml:"pbcoreInstantiation"`
	Annotations    []Annotation    `xml:"pbcoreAnnotation"`
}

// InstantiationDocument is a standalone pbcoreInstantiationDocument
type InstantiationDocument struct {
	XMLName xml.Name `xml:"pbcoreInstantiationDocument"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Instantiation
}

// Identifier is a pbcoreIdentifier or instantiationIdentifier
type Identifier struct {
	Source string `xml:"source,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Title is a pbcoreTitle
type Title struct {
	Type  string `xml:"titleType,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Description is a pbcoreDescription
type Description struct {
	Type  string `xml:"descriptionType,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Date is a pbcoreAssetDate or instantiationDate
type Date struct {
	Type  string `xml:"dateType,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Coverage is a pbcoreCoverage
type Coverage struct {
	Coverage string `xml:"coverage"`
	Type     string `xml:"coverageType"`
}

// Creator is a pbcoreCreator
type Creator struct {
	Creator string `xml:"creator"`
	Role    string `xml:"creatorRole"`
}

// Contributor is a pbcoreContributor
type Contributor struct {
	Contributor ContributorName `xml:"contributor"`
	Role        string          `xml:"contributorRole"`
}

// ContributorName carries the contributor and its affiliation
type ContributorName struct {
	Affiliation string `xml:"affiliation,attr,omitempty"`
	Value       string `xml:",chardata"`
}

// RightsSummary is a pbcoreRightsSummary
type RightsSummary struct {
	Summary string `xml:"rightsSummary,omitempty"`
	Link    string `xml:"rightsLink,omitempty"`
}

// Annotation is a pbcoreAnnotation or instantiationAnnotation
type Annotation struct {
	Type  string `xml:"annotationType,attr,omitempty"`
	Ref   string `xml:"ref,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Instantiation is a pbcoreInstantiation, and the body of an InstantiationDocument.
// Exactly one of Digital and Physical is expected to be present.
type Instantiation struct {
	Identifiers          []Identifier   `xml:"instantiationIdentifier"`
	Dates                []Date         `xml:"instantiationDate"`
	Physical             *string        `xml:"instantiationPhysical"`
	Digital              *string        `xml:"instantiationDigital"`
	Standard             string         `xml:"instantiationStandard,omitempty"`
	Location             string         `xml:"instantiationLocation,omitempty"`
	MediaType            string         `xml:"instantiationMediaType,omitempty"`
	Generations          []string       `xml:"instantiationGenerations"`
	FileSize             string         `xml:"instantiationFileSize,omitempty"`
	TimeStart            string         `xml:"instantiationTimeStart,omitempty"`
	Duration             string         `xml:"instantiationDuration,omitempty"`
	DataRate             string         `xml:"instantiationDataRate,omitempty"`
	Colors               string         `xml:"instantiationColors,omitempty"`
	Tracks               string         `xml:"instantiationTracks,omitempty"`
	ChannelConfiguration string         `xml:"instantiationChannelConfiguration,omitempty"`
	Languages            []string       `xml:"instantiationLanguage"`
	AlternativeModes     string         `xml:"instantiationAlternativeModes,omitempty"`
	EssenceTracks        []EssenceTrack `xml:"instantiationEssenceTrack"`
	Annotations          []Annotation   `xml:"instantiationAnnotation"`
}

// IsDigital reports whether the instantiation carries instantiationDigital
func (i *Instantiation) IsDigital() bool {
	return i.Digital != nil
}

// XML serializes the instantiation as a standalone pbcoreInstantiationDocument
func (i *Instantiation) XML() ([]byte, error) {
	doc := InstantiationDocument{
		Xmlns:         Namespace,
		Instantiation: *i,
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// EssenceTrack is an instantiationEssenceTrack
type EssenceTrack struct {
	Type         string       `xml:"essenceTrackType,omitempty"`
	Identifiers  []Identifier `xml:"essenceTrackIdentifier"`
	Standard     string       `xml:"essenceTrackStandard,omitempty"`
	Encoding     string       `xml:"essenceTrackEncoding,omitempty"`
	DataRate     string       `xml:"essenceTrackDataRate,omitempty"`
	FrameRate    string       `xml:"essenceTrackFrameRate,omitempty"`
	SamplingRate string       `xml:"essenceTrackSamplingRate,omitempty"`
	BitDepth     string       `xml:"essenceTrackBitDepth,omitempty"`
	FrameSize    string       `xml:"essenceTrackFrameSize,omitempty"`
	AspectRatio  string       `xml:"essenceTrackAspectRatio,omitempty"`
	Duration     string       `xml:"essenceTrackDuration,omitempty"`
	Languages    []string     `xml:"essenceTrackLanguage"`
	Annotations  []Annotation `xml:"essenceTrackAnnotation"`
}
