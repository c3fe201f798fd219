package instance

import (
	"fmt"
	"regexp"
)

// DefaultName is used when neither a flag nor the config names an instance.
const DefaultName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve picks the instance name: flag override, then the config default, then "main".
// The result is validated so it is always safe to use as a directory name.
func Resolve(flagOverride, configDefault string) (string, error) {
	name := DefaultName
	switch {
	case flagOverride != "":
		name = flagOverride
	case configDefault != "":
		name = configDefault
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateName checks that name is usable as an instance directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid instance name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
