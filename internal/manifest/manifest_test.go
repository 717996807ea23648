package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	m := Build(map[string]string{
		"/assets/application.js": "/assets/application-aaa.js",
		"assets/vendor.js":       "assets/vendor-bbb.js",
	})

	assert.Equal(t, map[string]string{
		"assets/application.js": "assets/application-aaa.js",
		"assets/vendor.js":      "assets/vendor-bbb.js",
		"assets/assetMap.json":  "assets/assetMap.json",
	}, m.Assets)
	assert.Equal(t, "", m.Prepend)
	assert.Equal(t, []string{"assets/application.js", "assets/assetMap.json", "assets/vendor.js"}, m.Keys())
	assert.Equal(t, []string{"assets/application-aaa.js", "assets/vendor-bbb.js"}, m.Published())
}

func TestBuildStripsOnlyOneLeadingSlash(t *testing.T) {
	m := Build(map[string]string{"//weird.js": "//weird-1.js"})
	published, ok := m.Lookup("//weird.js")
	require.True(t, ok)
	assert.Equal(t, "/weird-1.js", published)
}

func TestLookup(t *testing.T) {
	m := Build(map[string]string{"/assets/application.js": "/assets/application-aaa.js"})

	published, ok := m.Lookup("/assets/application.js")
	assert.True(t, ok)
	assert.Equal(t, "assets/application-aaa.js", published)

	_, ok = m.Lookup("assets/missing.js")
	assert.False(t, ok)
}

func TestMarshalIsStable(t *testing.T) {
	hashed := map[string]string{}
	for _, name := range []string{"z", "a", "m", "c", "q"} {
		hashed["/assets/"+name+".js"] = "/assets/" + name + "-1.js"
	}

	first, err := Build(hashed).Marshal()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Build(hashed).Marshal()
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.True(t, strings.Index(string(first), `"assets/a.js"`) < strings.Index(string(first), `"assets/z.js"`))
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	m := Build(map[string]string{"/assets/application.js": "/assets/application-aaa.js"})

	require.NoError(t, Write(dir, m))

	raw, err := os.ReadFile(filepath.Join(dir, "assets", "assetMap.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "", decoded["prepend"])
	assert.Len(t, decoded["assets"], 2)

	back, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.Error(t, err)
}
