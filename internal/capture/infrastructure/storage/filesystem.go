package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const chartExtension = ".pdf"

// FilesystemStore persists rendered charts under a storage root, addressed
// as <root>/<site>/<meter>/<metric filename>.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore constructs a store.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, errors.New("artifact store: empty storage root")
	}
	return &FilesystemStore{root: root}, nil
}

// Save writes one chart artifact, creating directories as needed. An
// existing artifact for the same address is overwritten.
func (s *FilesystemStore) Save(ctx context.Context, siteID, meterNumber, metricFilename string, data []byte) error {
	if s == nil || s.root == "" {
		return errors.New("artifact store: not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if siteID == "" || meterNumber == "" || metricFilename == "" {
		return errors.New("artifact store: empty address component")
	}
	if len(data) == 0 {
		return errors.New("artifact store: empty image data")
	}

	dir := filepath.Join(s.root, sanitize(siteID), sanitize(meterNumber))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := sanitize(metricFilename)
	if !strings.HasSuffix(name, chartExtension) {
		name += chartExtension
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// Path returns the artifact path an address maps to.
func (s *FilesystemStore) Path(siteID, meterNumber, metricFilename string) string {
	name := sanitize(metricFilename)
	if !strings.HasSuffix(name, chartExtension) {
		name += chartExtension
	}
	return filepath.Join(s.root, sanitize(siteID), sanitize(meterNumber), name)
}

// sanitize keeps address components from escaping the storage root.
func sanitize(component string) string {
	component = strings.ReplaceAll(component, string(filepath.Separator), "_")
	component = strings.ReplaceAll(component, "..", "_")
	if component == "" {
		return "_"
	}
	return component
}
