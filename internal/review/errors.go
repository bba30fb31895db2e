package review

import "fmt"

// Operational exit codes. Verdict codes (0, 1, 2) come from synthesis.
const (
	ExitNoAgents       = 11
	ExitInvalidProject = 12
	ExitProviderInit   = 13
	ExitUsage          = 14
	ExitRuntime        = 15
)

// ExitError is a configuration failure that ends the run with Code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func exitErrorf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
