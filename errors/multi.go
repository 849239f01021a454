package errors

import (
	"github.com/hashicorp/go-multierror"
)

// Collector accumulates zero or more errors encountered while validating or
// flushing state that should be checked exhaustively rather than failing on
// the first problem (e.g. validating every BPB field at mount, or flushing
// every dirty cache slot at Close).
type Collector struct {
	err *multierror.Error
}

// Add records err if it is non-nil. Safe to call with a nil err.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.err = multierror.Append(c.err, err)
}

// HasErrors reports whether any error has been recorded.
func (c *Collector) HasErrors() bool {
	return c.err != nil && c.err.Len() > 0
}

// AsError returns nil if nothing was recorded, otherwise a single error
// combining every recorded failure.
func (c *Collector) AsError() error {
	if !c.HasErrors() {
		return nil
	}
	return c.err.ErrorOrNil()
}

// AsDriverError is like AsError but wraps the result as a DriverError rooted
// at the given sentinel, for callers that need to return a DiskoError kind.
func (c *Collector) AsDriverError(kind DiskoError) DriverError {
	if !c.HasErrors() {
		return nil
	}
	return kind.WrapError(c.err)
}
