package metric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistry_EmptyPathUsesDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	d, ok := r.Lookup("UPLINK")
	require.True(t, ok)
	assert.Equal(t, "Up-AvgResult", d.Token)
}

func TestNewRegistry_LoadsFile(t *testing.T) {
	path := writeCatalogFile(t, `
metrics:
  - id: PING
    label: Ping
    token: Ping-AvgResult
  - id: JITTER
    label: Jitter
    token: Jitter-AvgResult
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	d, ok := r.Lookup("jitter")
	require.True(t, ok)
	assert.Equal(t, "Jitter-AvgResult", d.Token)
	assert.Len(t, r.Catalog().List(), 2)
}

func TestNewRegistry_SchemaRejectsMalformedCatalog(t *testing.T) {
	// 目录不合法属于启动期错误，不应吞掉。
	cases := map[string]string{
		"missing metrics key": "other: 1\n",
		"empty metrics list":  "metrics: []\n",
		"entry without token": "metrics:\n  - id: PING\n",
		"unknown field":       "metrics:\n  - id: PING\n    token: X\n    extra: true\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeCatalogFile(t, content)
			_, err := NewRegistry(path)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistry_MissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStaticRegistry_SwapCatalogPerTest(t *testing.T) {
	c, err := NewCatalog([]Definition{{ID: "CUSTOM", Label: "Custom", Token: "Custom-AvgResult"}})
	require.NoError(t, err)

	r := NewStaticRegistry(c)
	_, ok := r.Lookup("PING")
	assert.False(t, ok)
	d, ok := r.Lookup("CUSTOM")
	require.True(t, ok)
	assert.Equal(t, "Custom-AvgResult", d.Token)
}
