package retrieval

import "fmt"

// CodeRetrieval is the machine-readable code carried by Error.
const CodeRetrieval = "retrieval_error"

// Error is returned when a search cannot produce any signal: the query
// could not be embedded, or every vector query failed.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "retrieval failed: " + e.Reason
	}
	return fmt.Sprintf("retrieval failed: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns CodeRetrieval.
func (e *Error) Code() string {
	return CodeRetrieval
}
