package stores

import (
	"fmt"
	"strings"
)

// SchemaError reports that the target rejected a write for a shape reason: the
// table or one or more columns the transformer emitted do not exist at the
// destination yet. The writer retries exactly once with a reduced projection
// when it sees this kind.
type SchemaError struct {
	Table        string
	Columns      []string // columns missing at the destination
	TableMissing bool
	Err          error
}

func (e *SchemaError) Error() string {
	if e.TableMissing {
		return fmt.Sprintf("schema mismatch: table %q does not exist", e.Table)
	}
	return fmt.Sprintf("schema mismatch: table %q is missing columns [%s]", e.Table, strings.Join(e.Columns, ", "))
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ConnectivityError reports a transport or availability failure talking to a
// store. The engine treats this class as retryable with bounded backoff,
// unlike schema errors.
type ConnectivityError struct {
	Store string
	Op    string
	Err   error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ConstraintError reports that the target rejected a row for a constraint
// reason other than the declared conflict column (NOT NULL, CHECK, foreign
// key). Never retried: the row itself is at fault.
type ConstraintError struct {
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on table %q: %v", e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }
