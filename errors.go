package gating

import "fmt"

// GateError is the family of gating errors. Every one of them is a
// configuration error found while the graph is being built.
type GateError interface {
	error
	gateError()
}

// ParameterValueError is returned for an unsupported feature extraction, a
// density out of (0, 1], or a subsampled shape that does not collapse as the
// granularity requires.
type ParameterValueError struct {
	Msg string
}

func (err ParameterValueError) Error() string { return err.Msg }
func (err ParameterValueError) gateError()    {}

// GranularityTypeError is returned for an unrecognized granularity.
type GranularityTypeError struct {
	Granularity string
}

func (err GranularityTypeError) Error() string {
	return fmt.Sprintf("Unrecognized granularity %q.", err.Granularity)
}
func (err GranularityTypeError) gateError() {}

func paramErrorf(format string, args ...interface{}) ParameterValueError {
	return ParameterValueError{Msg: fmt.Sprintf(format, args...)}
}
