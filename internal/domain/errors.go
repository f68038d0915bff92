package domain

import "fmt"

// NotFoundError represents a missing document.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing documents.
var ErrNotFound = NotFoundError{}

// ConflictError reports an optimistic replace that lost a concurrent race.
type ConflictError struct {
	Collection string
	ID         string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("concurrent update of %s/%s", e.Collection, e.ID)
}

// ReplaceOutcome is the result of a conditional document replace. A write
// whose resulting document is identical to the stored one yields
// ReplaceUnchanged instead of an error.
type ReplaceOutcome int

const (
	ReplaceReplaced ReplaceOutcome = iota
	ReplaceUnchanged
)

func (o ReplaceOutcome) String() string {
	switch o {
	case ReplaceReplaced:
		return "replaced"
	case ReplaceUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}
