package sstable

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"spatiallsm/pkg/dberrors"
)

// ManifestFile is the name of the manifest inside a data directory.
const ManifestFile = "MANIFEST"

// Manifest records the live tables of a data directory.
type Manifest struct {
	mu       sync.RWMutex
	filePath string
	metadata ManifestData
}

// ManifestData is the persisted manifest.
type ManifestData struct {
	NextTableID uint64      `json:"next_table_id"`
	Tables      []TableInfo `json:"tables"`
	Version     int         `json:"version"`
	// PersistentID is the newest sequence number held by a table.
	PersistentID uint64 `json:"persistent_id"`
}

// TableInfo describes one live table, oldest first in ManifestData.Tables.
type TableInfo struct {
	ID       uint64 `json:"id"`
	FileName string `json:"file_name"`
	Size     uint64 `json:"size"`
	Entries  uint64 `json:"entries"`
	Index    string `json:"index"`
	Height   int    `json:"height"`
	MaxSeqN  uint64 `json:"max_seq_n"`
}

// NewManifest creates an empty manifest for dataDir.
func NewManifest(dataDir string) *Manifest {
	return &Manifest{
		filePath: filepath.Join(dataDir, ManifestFile),
		metadata: ManifestData{
			NextTableID: 1,
			Version:     1,
		},
	}
}

// Load reads the manifest, creating it when missing.
func (m *Manifest) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return m.save()
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var md ManifestData
	if err := json.Unmarshal(data, &md); err != nil {
		return fmt.Errorf("%w: failed to parse manifest: %v", dberrors.ErrCorruption, err)
	}
	m.metadata = md
	return nil
}

// save writes the manifest through a temporary file and a rename.
func (m *Manifest) save() error {
	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		return fmt.Errorf("failed to install manifest: %w", err)
	}
	return nil
}

// NextTableID reserves a table identifier.
func (m *Manifest) NextTableID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.metadata.NextTableID
	m.metadata.NextTableID++
	return id
}

// AddTable appends a newly written table and persists the manifest.
func (m *Manifest) AddTable(info TableInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.metadata
	m.metadata.Tables = append(slices.Clip(m.metadata.Tables), info)
	if info.ID >= m.metadata.NextTableID {
		m.metadata.NextTableID = info.ID + 1
	}
	m.metadata.PersistentID = max(m.metadata.PersistentID, info.MaxSeqN)
	if err := m.save(); err != nil {
		m.metadata = prev
		return err
	}
	return nil
}

// Tables returns the live tables, oldest first.
func (m *Manifest) Tables() []TableInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.metadata.Tables)
}

// TotalSize is the byte size of all live tables.
func (m *Manifest) TotalSize() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total uint64
	for _, t := range m.metadata.Tables {
		total += t.Size
	}
	return total
}

// PersistentID is the newest sequence number durably stored in a table.
func (m *Manifest) PersistentID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata.PersistentID
}

// Dir is the data directory the manifest lives in.
func (m *Manifest) Dir() string { return filepath.Dir(m.filePath) }

// TableFileName names the file of table id.
func TableFileName(id uint64) string {
	return fmt.Sprintf("%06d.sst", id)
}
