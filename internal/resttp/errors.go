package resttp

import "fmt"

// MissingArgumentError reports a path parameter that had no corresponding
// argument at resolution time. No outbound call is made.
type MissingArgumentError struct {
	Field string
	Param string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("resttp: field %s: missing required path argument %q", e.Field, e.Param)
}

// ResolutionError reports a failed outbound call, tagged with the owning
// service, HTTP method and path so the query layer can log or surface it.
type ResolutionError struct {
	Service string
	Method  string
	Path    string
	Status  int
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resttp: service=%s method=%s path=%s: %v", e.Service, e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("resttp: service=%s method=%s path=%s: status %d", e.Service, e.Method, e.Path, e.Status)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
