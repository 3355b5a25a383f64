package history

import (
	"errors"
	"fmt"
)

var (
	// ErrNotExist is returned by Load when nothing has been stored yet.
	ErrNotExist = errors.New("history: snapshot does not exist")
	// ErrParse marks a stored snapshot that is not a well-formed document.
	ErrParse = errors.New("history: malformed snapshot")
	// ErrRead marks an I/O failure while loading a snapshot.
	ErrRead = errors.New("history: read snapshot")
	// ErrWrite marks an I/O failure while saving a snapshot.
	ErrWrite = errors.New("history: write snapshot")
)

// Store persists whole snapshots. Save must leave either the previous
// snapshot or the new one behind, never a partial document.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// ParseError reports a snapshot that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("history: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func readErr(path string, err error) error {
	return fmt.Errorf("%w %s: %v", ErrRead, path, err)
}

func writeErr(path string, err error) error {
	return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
}
