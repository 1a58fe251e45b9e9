package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("configuration not found")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrUnknownDriver  = fmt.Errorf("unknown database driver")
	ErrUnknownChannel = fmt.Errorf("unknown event driver")

	// Lookup errors
	ErrNotFound       = fmt.Errorf("not found")
	ErrDeleted        = fmt.Errorf("deleted")
	ErrParentMismatch = fmt.Errorf("not associated with parent")
	ErrUnknownTable   = fmt.Errorf("unknown table")

	// Authorization errors
	ErrForbidden = fmt.Errorf("forbidden")

	// Reorder errors
	ErrMissingItems = fmt.Errorf("missing item(s)")
	ErrStaleItem    = fmt.Errorf("item changed during update")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
