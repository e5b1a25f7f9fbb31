package pbcore

import (
	"strings"

	"github.com/teranos/AMS/errors"
)

// UnknownTypePolicy decides what happens to titles and descriptions whose
// type is not one of the recognized slots
type UnknownTypePolicy int

const (
	// UnknownDrop silently discards values of unrecognized type
	UnknownDrop UnknownTypePolicy = iota
	// UnknownKeep collects values of unrecognized type in TypedValues.Other
	UnknownKeep
)

// ParseUnknownTypePolicy reads the pbcore.unknown_type_policy setting
func ParseUnknownTypePolicy(s string) (UnknownTypePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return UnknownDrop, nil
	case "keep":
		return UnknownKeep, nil
	default:
		return UnknownDrop, errors.NewInvalidRequestError("unknown_type_policy must be drop or keep, got %q", s)
	}
}

// Recognized type slots
const (
	TypeDefault    = "default"
	TypeEpisode    = "episode"
	TypeSegment    = "segment"
	TypeRawFootage = "raw_footage"
	TypePromo      = "promo"
	TypeClip       = "clip"
)

// TypedValues holds values partitioned by type, each slot in source order
type TypedValues struct {
	Default    []string
	Episode    []string
	Segment    []string
	RawFootage []string
	Promo      []string
	Clip       []string
	Other      []string
}

// NormalizeType folds a PBCore type attribute into slot form:
// "Raw Footage" -> "raw_footage", "" -> "default".
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return TypeDefault
	}
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

// Demux partitions parallel value/type lists into typed slots.
// A value with an empty or missing type goes to the default slot under either
// policy; the policy only decides non-empty types outside the known slots.
func Demux(values, types []string, policy UnknownTypePolicy) TypedValues {
	var out TypedValues
	for i, v := range values {
		t := ""
		if i < len(types) {
			t = types[i]
		}
		switch NormalizeType(t) {
		case TypeDefault:
			out.Default = append(out.Default, v)
		case TypeEpisode:
			out.Episode = append(out.Episode, v)
		case TypeSegment:
			out.Segment = append(out.Segment, v)
		case TypeRawFootage:
			out.RawFootage = append(out.RawFootage, v)
		case TypePromo:
			out.Promo = append(out.Promo, v)
		case TypeClip:
			out.Clip = append(out.Clip, v)
		default:
			if policy == UnknownKeep {
				out.Other = append(out.Other, v)
			}
		}
	}
	return out
}
