package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// manifestNamespace scopes manifest IDs so they never collide with other
// SHA-1 based UUIDs derived from the same bytes.
var manifestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/mvp-joe/loadmap/manifest"))

// MarshalModules encodes the manifest entries as a JSON object keyed by module
// ID, in manifest order and without HTML escaping.
func (m *Manifest) MarshalModules() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeString(e.Module)
		if err != nil {
			return nil, err
		}
		value, err := e.Actions.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", e.Module, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ID derives a stable identifier from the manifest contents. Identical
// manifests always share an ID.
func (m *Manifest) ID() (uuid.UUID, error) {
	modules, err := m.MarshalModules()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(manifestNamespace, modules), nil
}

// Encode writes the manifest as indented JSON:
//
//	{
//	  "id": "<uuid>",
//	  "modules": { "<module>": { "<key>": "<value>" } }
//	}
func Encode(w io.Writer, m *Manifest) error {
	modules, err := m.MarshalModules()
	if err != nil {
		return err
	}
	id := uuid.NewSHA1(manifestNamespace, modules)

	var raw bytes.Buffer
	raw.WriteString(`{"id":"`)
	raw.WriteString(id.String())
	raw.WriteString(`","modules":`)
	raw.Write(modules)
	raw.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("failed to format manifest: %w", err)
	}
	out.WriteByte('\n')

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ErrNullEntry is returned by Decode for a module whose metadata is null.
var ErrNullEntry = errors.New("module entry is null")

// Decode reads a manifest written by Encode. Every module must map to an
// object; a null entry is rejected.
func Decode(r io.Reader) (*Manifest, uuid.UUID, error) {
	var doc struct {
		ID      uuid.UUID                  `json:"id"`
		Modules map[string]json.RawMessage `json:"modules"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Modules))
	for id, raw := range doc.Modules {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, uuid.Nil, fmt.Errorf("failed to decode %s: %w", id, ErrNullEntry)
		}
		e := Entry{Module: id}
		if err := json.Unmarshal(raw, &e.Actions); err != nil {
			return nil, uuid.Nil, fmt.Errorf("failed to decode %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	return newManifest(entries), doc.ID, nil
}

// Write atomically replaces path with the encoded manifest. Parent
// directories are created as needed.
func Write(path string, m *Manifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Encode(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
