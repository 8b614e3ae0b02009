package backend

import "fmt"

// MalformedError reports a persisted document or record that could not be
// decoded. Raw carries the undecoded bytes so the caller can inspect or
// recover them; the store itself is left untouched.
type MalformedError struct {
	Key string // empty for whole-document failures
	Raw []byte
	Err error
}

func (e *MalformedError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("backend: malformed persisted document (%d bytes): %v", len(e.Raw), e.Err)
	}
	return fmt.Sprintf("backend: malformed record %q (%d bytes): %v", e.Key, len(e.Raw), e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
