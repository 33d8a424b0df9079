package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// ErrMalformed indicates a state file that exists but is not a workspace document.
var ErrMalformed = errors.New("malformed state file")

// Store persists the URL workspace to a single JSON file.
type Store struct {
	path string
	log  pslog.Logger

	mu          sync.Mutex
	lastWritten []byte
}

// NewStore constructs a store for the given state file path.
func NewStore(path string) (*Store, error) {
	return NewStoreWithLogger(path, nil)
}

// NewStoreWithLogger constructs a store with logging. The parent directory is
// created if needed.
func NewStoreWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_file", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the workspace from disk. A missing file reports ok=false with no
// error; an unparsable file returns ErrMalformed.
func (s *Store) Load() (schema.Workspace, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return schema.Workspace{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return schema.Workspace{}, false, err
	}
	ws, err := Decode(data)
	if err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return schema.Workspace{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "tabs", ws.Len())
	}
	return ws, true, nil
}

// LoadOrInit returns the persisted workspace. A missing file is initialized
// with an empty workspace and written immediately. A malformed file yields an
// empty workspace and is left untouched.
func (s *Store) LoadOrInit() (schema.Workspace, error) {
	ws, ok, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			if s.log != nil {
				s.log.Warn("state file malformed; starting empty", "err", err)
			}
			return schema.NewWorkspace(), nil
		}
		return schema.Workspace{}, err
	}
	if ok {
		return ws, nil
	}
	ws = schema.NewWorkspace()
	if err := s.Save(ws); err != nil {
		return schema.Workspace{}, err
	}
	return ws, nil
}

// Save writes the workspace atomically.
func (s *Store) Save(ws schema.Workspace) error {
	data, err := Encode(ws)
	if err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "err", err)
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, data); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "err", err)
		}
		return err
	}
	s.lastWritten = data
	if s.log != nil {
		s.log.Trace("state save ok", "tabs", ws.Len())
	}
	return nil
}

// IsOwnWrite reports whether data matches the last document this store wrote.
func (s *Store) IsOwnWrite(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWritten != nil && bytes.Equal(bytes.TrimSpace(data), bytes.TrimSpace(s.lastWritten))
}

// Encode renders the workspace in the state file format.
func Encode(ws schema.Workspace) ([]byte, error) {
	if ws.Tabs == nil {
		ws.Tabs = []string{}
	}
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a state file document. Hand edits may carry // and /* */
// comments and trailing commas.
func Decode(data []byte) (schema.Workspace, error) {
	var doc struct {
		Tabs *[]string `json:"tabs"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return schema.Workspace{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Tabs == nil {
		return schema.Workspace{}, fmt.Errorf("%w: missing tabs", ErrMalformed)
	}
	ws := schema.NewWorkspace()
	for _, url := range *doc.Tabs {
		url = schema.NormalizeURL(url)
		if url == "" {
			continue
		}
		ws.Tabs = append(ws.Tabs, url)
	}
	return ws, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
