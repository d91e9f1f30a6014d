package instance

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is wrapped by every ValidateName failure.
var ErrInvalidName = errors.New("invalid instance name")

// Names become a directory under instances/ and the presence key of the
// hub, so they stay lowercase and path-safe. A leading hyphen would read as
// a flag on the chatctl command line.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]{0,63}$`)

func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z, 0-9, '_' or '-', not starting with '-'", ErrInvalidName, name)
	}
	return nil
}
