package types

import (
	"fmt"

	"github.com/teranos/AMS/errors"
)

// Outcome is the result of one best-effort step against one object.
// A failed step is recorded and the caller moves on to the next one.
type Outcome struct {
	Step       string
	ObjectType string
	ID         string
	Err        error
}

// Failed reports whether the step returned an error
func (o Outcome) Failed() bool { return o.Err != nil }

// Describe renders a failed outcome as "<Class>: <message>"
func (o Outcome) Describe() string {
	if o.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", errors.ClassName(o.Err), o.Err.Error())
}

// Failures returns the failed outcomes, in order
func Failures(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}
