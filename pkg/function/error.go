package function

// CodeValidation is the machine-readable code carried by ValidationError.
const CodeValidation = "validation_error"

// ValidationError is returned when a request is rejected before reaching any
// external service.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Code returns CodeValidation.
func (e *ValidationError) Code() string {
	return CodeValidation
}
