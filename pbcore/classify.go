package pbcore

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/teranos/AMS/errors"
)

// Shape is the kind of PBCore document
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeDescription
	ShapeInstantiation
)

func (s Shape) String() string {
	switch s {
	case ShapeDescription:
		return rootDescription
	case ShapeInstantiation:
		return rootInstantiation
	default:
		return "unknown"
	}
}

// Document is a parsed PBCore document. Exactly one of Description and
// Instantiation is set, according to Shape.
type Document struct {
	Shape         Shape
	Description   *DescriptionDocument
	Instantiation *InstantiationDocument
}

// Classify determines the document shape from its root element.
// Anything other than a description or instantiation document is an
// errors.ErrClassification.
func Classify(data []byte) (Shape, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return ShapeUnknown, errors.Wrap(errors.ErrClassification, "no root element")
		}
		if err != nil {
			return ShapeUnknown, errors.WithDetail(
				errors.Wrap(errors.ErrClassification, "malformed XML"),
				err.Error(),
			)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case rootDescription:
			return ShapeDescription, nil
		case rootInstantiation:
			return ShapeInstantiation, nil
		default:
			return ShapeUnknown, errors.Wrapf(errors.ErrClassification, "root element <%s>", start.Name.Local)
		}
	}
}

// Parse classifies and decodes a PBCore document
func Parse(data []byte) (*Document, error) {
	shape, err := Classify(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{Shape: shape}
	switch shape {
	case ShapeDescription:
		doc.Description = &DescriptionDocument{}
		err = xml.Unmarshal(data, doc.Description)
	case ShapeInstantiation:
		doc.Instantiation = &InstantiationDocument{}
		err = xml.Unmarshal(data, doc.Instantiation)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode %s: %s", shape, err)
	}
	return doc, nil
}
