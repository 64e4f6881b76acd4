package nametable

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whit3rabbit/siterelay/internal/cipher"
)

func newCodec(t *testing.T, password string) *cipher.Codec {
	t.Helper()
	c, err := cipher.NewCodec(password)
	require.NoError(t, err)
	return c
}

func TestDefaultTableResolvesEveryKey(t *testing.T) {
	table, err := Default(newCodec(t, "siterelay"))
	require.NoError(t, err)

	for _, k := range AllKeys {
		n, err := table.Resolve(k)
		require.NoError(t, err, "key %s", k)

		if k == KeyRefDom {
			assert.Equal(t, Name{Element: "refdom", Attribute: "value"}, n)
			continue
		}
		assert.Equal(t, "hidden", n.Element, "key %s", k)
		assert.Equal(t, string(k), n.Attribute, "key %s", k)
	}
	assert.Len(t, table.Keys(), len(AllKeys))
}

func TestResolveWithWrongPasswordYieldsGarbage(t *testing.T) {
	table, err := Default(newCodec(t, "not-the-password"))
	require.NoError(t, err)

	n, err := table.Resolve(KeyOnOff)
	require.NoError(t, err)
	assert.NotEqual(t, "onoff", n.Attribute)
}

func TestResolveUnknownKey(t *testing.T) {
	table, err := Load(strings.NewReader("version: siterelay-names-v1\nentries: {}\n"), newCodec(t, "siterelay"))
	require.NoError(t, err)

	_, err = table.Resolve(KeyOnOff)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestLoadRejectsBadInput(t *testing.T) {
	codec := newCodec(t, "siterelay")

	_, err := Load(strings.NewReader("version: other\nentries: {}\n"), codec)
	assert.Error(t, err)

	_, err = Load(strings.NewReader("version: siterelay-names-v1\nentries:\n  bogus:\n    element: \"00\"\n"), codec)
	assert.Error(t, err)

	_, err = Load(strings.NewReader("version: siterelay-names-v1\n"), nil)
	assert.Error(t, err)

	table, err := Load(strings.NewReader("version: siterelay-names-v1\nentries:\n  onoff:\n    element: \"zz\"\n    attribute: \"00\"\n"), codec)
	require.NoError(t, err)
	_, err = table.Resolve(KeyOnOff)
	assert.Error(t, err)
}

func TestLoadFileWithEncodedEntries(t *testing.T) {
	codec := newCodec(t, "custom")
	e := Encode(codec, "block", "flag")

	content := "version: siterelay-names-v1\nentries:\n  onoff:\n    element: \"" + e.Element + "\"\n    attribute: \"" + e.Attribute + "\"\n"
	path := filepath.Join(t.TempDir(), "names.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := LoadFile(path, codec)
	require.NoError(t, err)

	n, err := table.Resolve(KeyOnOff)
	require.NoError(t, err)
	assert.Equal(t, Name{Element: "block", Attribute: "flag"}, n)

	raw, ok := table.Entry(KeyOnOff)
	assert.True(t, ok)
	assert.Equal(t, e, raw)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), codec)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("  KeyCycleB ")
	require.NoError(t, err)
	assert.Equal(t, KeyKeyCycleB, k)

	_, err = ParseKey("nope")
	assert.Error(t, err)
}

func TestExportRekeysTable(t *testing.T) {
	table, err := Default(newCodec(t, "siterelay"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.Export(&buf, newCodec(t, "rotated")))
	assert.Contains(t, buf.String(), "version: siterelay-names-v1")

	rekeyed, err := Load(&buf, newCodec(t, "rotated"))
	require.NoError(t, err)
	for _, k := range AllKeys {
		want, err := table.Resolve(k)
		require.NoError(t, err)
		got, err := rekeyed.Resolve(k)
		require.NoError(t, err)
		assert.Equal(t, want, got, "key %s", k)
	}

	assert.Error(t, table.Export(&buf, nil))
}
