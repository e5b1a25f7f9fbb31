package pbcore

import (
	"regexp"
	"strings"

	"github.com/teranos/AMS/errors"
)

var nonExactDate = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2])(-(0[1-9]|[12]\d|3[01]))?)?$`)

// ValidateDate accepts YYYY, YYYY-MM and YYYY-MM-DD
func ValidateDate(value string) error {
	if !nonExactDate.MatchString(strings.TrimSpace(value)) {
		return errors.NewInvalidRequestError("invalid date format: %s", value)
	}
	return nil
}

func validateDates(values []string) error {
	for _, v := range values {
		if err := ValidateDate(v); err != nil {
			return err
		}
	}
	return nil
}
