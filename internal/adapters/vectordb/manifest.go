package vectordb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Manifest describes how an index artifact was built.
type Manifest struct {
	EmbeddingModel string    `yaml:"embedding_model"`
	Collection     string    `yaml:"collection"`
	Dimensions     int       `yaml:"dimensions"`
	Chunks         int       `yaml:"chunks"`
	BuiltAt        time.Time `yaml:"built_at"`
}

// ManifestPath returns the manifest location for an index file.
func ManifestPath(indexPath string) string {
	return indexPath + ".manifest.yaml"
}

// ReadManifest loads a manifest. A missing file yields fs.ErrNotExist.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// WriteManifest stores a manifest next to the index, replacing any previous one.
func WriteManifest(path string, m *Manifest) error {
	tmp, err := writeManifestTemp(path, m)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

// writeManifestTemp encodes m into a temporary sibling of path and returns its name.
func writeManifestTemp(path string, m *Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	tmp, err := tempSibling(path)
	if err != nil {
		return "", fmt.Errorf("writing manifest %s: %w", path, err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return tmp, nil
}

// tempSibling reserves a hidden file in the directory of path. Renaming it
// over path replaces path atomically.
func tempSibling(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	err = f.Close()
	if err == nil {
		err = os.Chmod(name, 0644)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// checkManifest enforces that the index is queried with the model that built it.
// Indexes without a manifest are accepted.
func checkManifest(indexPath, model string) (*Manifest, error) {
	m, err := ReadManifest(ManifestPath(indexPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.EmbeddingModel != "" && m.EmbeddingModel != model {
		return m, fmt.Errorf("%w: index built with %q, configured %q", ErrEmbeddingMismatch, m.EmbeddingModel, model)
	}
	return m, nil
}
