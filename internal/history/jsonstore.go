package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFile is the snapshot file name used when none is configured.
const DefaultFile = "message_cache.json"

// JSONFileStore keeps the snapshot as one indented JSON document. Writes go
// to a temp file in the same directory which is then renamed over the target.
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	if path == "" {
		path = DefaultFile
	}
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Path() string { return s.path }

func (s *JSONFileStore) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, readErr(s.path, err)
	}
	return decodeSnapshot(s.path, data)
}

func (s *JSONFileStore) Save(snap Snapshot) error {
	buf, err := encodeSnapshot(snap)
	if err != nil {
		return writeErr(s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeErr(s.path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return writeErr(s.path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return writeErr(s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return writeErr(s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return writeErr(s.path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return writeErr(s.path, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return writeErr(s.path, err)
	}
	return nil
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap == nil {
		snap = Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(path string, data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if snap == nil {
		// A literal "null" document.
		return nil, &ParseError{Path: path, Err: errors.New("top level is not an object")}
	}
	return snap, nil
}
