package metadata

import (
	"encoding/json"
	"testing"

	"github.com/ralt/condainspect/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScenario(t *testing.T) {
	record, err := Decode([]byte(`{"name":"pkgname","version":"1.0","build":"0","build_number":0}`))
	require.NoError(t, err)

	assert.Equal(t, "pkgname", record.Name)
	assert.Equal(t, "1.0", record.Version)
	assert.Equal(t, "0", record.Build)
	assert.Equal(t, uint64(0), record.BuildNumber)
	assert.Nil(t, record.Timestamp)
	assert.NoError(t, record.Validate())
}

func TestDecodeKnownFields(t *testing.T) {
	doc := `{
  "arch": "x86_64",
  "build": "h7f98852_4",
  "build_number": 4,
  "depends": ["libgcc-ng >=9.4.0", "zlib"],
  "constrains": ["openssl >=3"],
  "license": "bzip2-1.0.6",
  "name": "bzip2",
  "platform": "linux",
  "subdir": "linux-64",
  "timestamp": 1622468300000,
  "version": "1.0.8"
}`
	record, err := Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "bzip2", record.Name)
	assert.Equal(t, uint64(4), record.BuildNumber)
	assert.Equal(t, []string{"libgcc-ng >=9.4.0", "zlib"}, record.Depends)
	assert.Equal(t, []string{"openssl >=3"}, record.Constrains)
	assert.Equal(t, "linux-64", record.Subdir)
	assert.Equal(t, "linux", record.Platform)
	require.NotNil(t, record.Timestamp)
	assert.Equal(t, int64(1622468300000), *record.Timestamp)
	assert.Equal(t, "bzip2-h7f98852_4-1.0.8", record.Name+"-"+record.Build+"-"+record.Version)
}

func TestDecodePreservesUnknownFieldsInOrder(t *testing.T) {
	doc := `{"zeta":{"b":1,"a":2},"name":"x","alpha":[1,2],"version":"1","track_features":"","build":"0","build_number":0,"noarch":"python"}`
	record, err := Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "name", "alpha", "version", "track_features", "build", "build_number", "noarch"}, record.Keys())

	raw, ok := record.Get("noarch")
	require.True(t, ok)
	assert.JSONEq(t, `"python"`, string(raw))

	// Re-encoding keeps key order and nested values verbatim
	out, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))
}

func TestDecodeNullPlatform(t *testing.T) {
	record, err := Decode([]byte(`{"name":"x","version":"1","build":"py_0","build_number":0,"platform":null,"arch":null,"subdir":"noarch"}`))
	require.NoError(t, err)
	assert.Empty(t, record.Platform)
	assert.Equal(t, "noarch", record.Subdir)
}

func TestDecodeDoesNotValidateSemantics(t *testing.T) {
	// Missing required fields and nonsense dependency specs still decode
	record, err := Decode([]byte(`{"depends":["!!not a dependency!!"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"!!not a dependency!!"}, record.Depends)
	assert.Error(t, record.Validate())
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":          []byte(""),
		"whitespace":     []byte("  \n"),
		"array":          []byte(`[1,2]`),
		"null":           []byte(`null`),
		"truncated":      []byte(`{"name":"x"`),
		"trailing":       []byte(`{"name":"x"} {}`),
		"invalid utf8":   []byte("{\"name\":\"\xff\xfe\"}"),
		"wrong type":     []byte(`{"name":"x","build_number":"zero"}`),
		"negative build": []byte(`{"name":"x","build_number":-1}`),
		"depends string": []byte(`{"name":"x","depends":"zlib"}`),
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			record, err := Decode(input)
			assert.Nil(t, record)
			assert.True(t, models.IsErrorType(err, models.ErrMalformedMetadata), "got %v", err)
		})
	}
}

func TestRecordSetAndClone(t *testing.T) {
	record, err := Decode([]byte(`{"name":"x","version":"1","build":"0","build_number":0}`))
	require.NoError(t, err)

	clone := record.Clone()
	require.NoError(t, clone.Set("md5", "abc"))
	require.NoError(t, clone.Set("size", 42))

	_, ok := record.Get("md5")
	assert.False(t, ok, "clone must not share fields with the original")

	out, err := json.Marshal(clone)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x","version":"1","build":"0","build_number":0,"md5":"abc","size":42}`, string(out))
}
