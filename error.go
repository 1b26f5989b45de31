package radio

import "strings"

// ValidationErrors is returned when model configuration is invalid. Every
// element is a human-readable description of a single problem.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	return "invalid model configuration: " + strings.Join(e, "; ")
}

// ret returns untyped nil if list is empty.
func (e ValidationErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
