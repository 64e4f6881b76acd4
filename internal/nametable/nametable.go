// Package nametable maps logical setting keys to the obfuscated element and
// attribute names used in the remote configuration document.
//
// The table itself is opaque data: each entry holds two hex literals that
// only make sense once decoded through a cipher.Codec keyed with the right
// password. A default table is embedded; an alternative can be loaded from a
// YAML file.
package nametable

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/whit3rabbit/siterelay/internal/cipher"
)

const tableVersion = "siterelay-names-v1"

//go:embed names.yaml
var defaultTable []byte

// ErrUnknownKey is returned by Resolve for keys without a table entry.
var ErrUnknownKey = errors.New("nametable: unknown key")

// Entry is one row of the table, as stored.
type Entry struct {
	Element   string `yaml:"element"`
	Attribute string `yaml:"attribute"`
}

// Name is a decoded entry.
type Name struct {
	Element   string
	Attribute string
}

type tableFile struct {
	Version string           `yaml:"version"`
	Entries map[string]Entry `yaml:"entries"`
}

// Table resolves keys through a codec. Decoded names are cached.
type Table struct {
	codec   *cipher.Codec
	entries map[Key]Entry

	mu      sync.RWMutex
	decoded map[Key]Name
}

// Default returns the embedded table.
func Default(codec *cipher.Codec) (*Table, error) {
	return Load(bytes.NewReader(defaultTable), codec)
}

// LoadFile reads a table from a YAML file.
func LoadFile(path string, codec *cipher.Codec) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open name table %s: %w", path, err)
	}
	defer f.Close()

	t, err := Load(f, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to load name table %s: %w", path, err)
	}
	return t, nil
}

// Load reads a table from r.
func Load(r io.Reader, codec *cipher.Codec) (*Table, error) {
	if codec == nil {
		return nil, errors.New("nametable: nil codec")
	}

	var file tableFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("nametable: decode: %w", err)
	}
	if file.Version != tableVersion {
		return nil, fmt.Errorf("incompatible name table version: file has '%s', expected '%s'", file.Version, tableVersion)
	}

	t := &Table{
		codec:   codec,
		entries: make(map[Key]Entry, len(file.Entries)),
		decoded: make(map[Key]Name, len(file.Entries)),
	}
	for name, e := range file.Entries {
		k, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		t.entries[k] = e
	}
	return t, nil
}

// Resolve decodes both the element and the attribute name for key.
func (t *Table) Resolve(key Key) (Name, error) {
	t.mu.RLock()
	n, ok := t.decoded[key]
	t.mu.RUnlock()
	if ok {
		return n, nil
	}

	e, ok := t.entries[key]
	if !ok {
		return Name{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	elem, err := t.codec.DecodeString(e.Element)
	if err != nil {
		return Name{}, fmt.Errorf("nametable: element of %s: %w", key, err)
	}
	attr, err := t.codec.DecodeString(e.Attribute)
	if err != nil {
		return Name{}, fmt.Errorf("nametable: attribute of %s: %w", key, err)
	}

	n = Name{Element: elem, Attribute: attr}
	t.mu.Lock()
	t.decoded[key] = n
	t.mu.Unlock()
	return n, nil
}

// Keys returns the keys present in the table, sorted.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Entry returns the raw literals for key.
func (t *Table) Entry(key Key) (Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Encode builds an entry for the given plain names, for authoring tables.
func Encode(codec *cipher.Codec, element, attribute string) Entry {
	return Entry{
		Element:   codec.EncodeString(element),
		Attribute: codec.EncodeString(attribute),
	}
}

// Export writes the table in file form with every name re-encoded through
// codec. It is used to move a table to a new password.
func (t *Table) Export(w io.Writer, codec *cipher.Codec) error {
	if codec == nil {
		return errors.New("nametable: nil codec")
	}
	out := tableFile{Version: tableVersion, Entries: make(map[string]Entry, len(t.entries))}
	for _, k := range t.Keys() {
		name, err := t.Resolve(k)
		if err != nil {
			return err
		}
		out.Entries[string(k)] = Encode(codec, name.Element, name.Attribute)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("nametable: encode: %w", err)
	}
	return enc.Close()
}
