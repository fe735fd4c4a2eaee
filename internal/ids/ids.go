package ids

import "github.com/segmentio/ksuid"

// New returns a time-sortable identifier.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether id parses as an identifier produced by New.
func Valid(id string) bool {
	_, err := ksuid.Parse(id)
	return err == nil
}
