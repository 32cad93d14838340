package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// manifest is the durable queue of undelivered items. Every mutation is
// written to a temp file and renamed into place so a crash mid-write
// never corrupts recoverable state.
type manifest struct {
	path  string
	items []model.DeliveryItem
	mu    sync.Mutex
}

func loadManifest(path string) (*manifest, error) {
	m := &manifest{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery manifest: %w", err)
	}

	if err := json.Unmarshal(data, &m.items); err != nil {
		return nil, fmt.Errorf("failed to parse delivery manifest %s: %w", path, err)
	}

	// Items caught mid-flight by a crash go back to pending so they are
	// retried; duplicates are acceptable, silent loss is not.
	for i := range m.items {
		if m.items[i].Status == model.DeliveryInFlight {
			m.items[i].Status = model.DeliveryPending
		}
	}

	return m, nil
}

// saveLocked persists the manifest. Caller holds m.mu.
func (m *manifest) saveLocked() error {
	data, err := json.MarshalIndent(m.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal delivery manifest: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write delivery manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace delivery manifest: %w", err)
	}
	return nil
}

func (m *manifest) add(item model.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return m.saveLocked()
}

func (m *manifest) update(item model.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = item
			return m.saveLocked()
		}
	}
	return fmt.Errorf("delivery item %s not in manifest", item.ID)
}

func (m *manifest) remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return m.saveLocked()
		}
	}
	return nil
}

// pending returns a snapshot of items still awaiting delivery.
func (m *manifest) pending() []model.DeliveryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeliveryItem
	for _, it := range m.items {
		if it.Status == model.DeliveryPending {
			out = append(out, it)
		}
	}
	return out
}

// all returns a snapshot of every item, including the dead-lettered.
func (m *manifest) all() []model.DeliveryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DeliveryItem, len(m.items))
	copy(out, m.items)
	return out
}

// defaultManifestPath places the manifest next to the backed-up artifacts.
func defaultManifestPath(backupDir string) string {
	return filepath.Join(backupDir, "manifest.json")
}
