// spool.go provides crash-safe disk spooling for quotes that could not be
// flushed at shutdown.
//
// Writes use atomic file replacement (write to .tmp, then rename) so the
// spool file is never left in a partial state. The batch writer saves here
// when the final flush fails, and drains the spool back into its queue on
// the next start.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vantage-engine/pkg/types"
)

const spoolFile = "unflushed_quotes.json"

// Spool persists pending quotes to a JSON file in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Spool struct {
	dir string
	mu  sync.Mutex
}

// OpenSpool creates a spool backed by the given directory.
func OpenSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Save atomically persists the given quotes, replacing any previous spool.
func (s *Spool) Save(quotes []types.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("marshal spool: %w", err)
	}

	path := filepath.Join(s.dir, spoolFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write spool: %w", err)
	}
	return os.Rename(tmp, path)
}

// Drain reads and removes the spool. Returns nil, nil when no spool exists.
func (s *Spool) Drain() ([]types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, spoolFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read spool: %w", err)
	}

	var quotes []types.Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return nil, fmt.Errorf("unmarshal spool: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove spool: %w", err)
	}
	return quotes, nil
}
