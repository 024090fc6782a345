package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Store connection errors
	ErrSourceUnavailable  = fmt.Errorf("source store unavailable")
	ErrTargetUnavailable  = fmt.Errorf("target store unavailable")
	ErrStorageUnavailable = fmt.Errorf("blob storage unavailable")

	// Migration errors
	ErrMissingNaturalKey   = fmt.Errorf("record has no natural key")
	ErrDuplicateNaturalKey = fmt.Errorf("duplicate natural key")
	ErrUnknownEntityType   = fmt.Errorf("unknown entity type")
	ErrBlobTransfer        = fmt.Errorf("blob transfer failed")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
