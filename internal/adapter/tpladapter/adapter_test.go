package tpladapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefault(t *testing.T) {
	a, err := NewTplAdapter("")
	require.NoError(t, err)

	out, err := a.Render(&Page{Title: "a <b>", Refresh: 2, Body: "<table></table>"})
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<title>a &lt;b&gt;</title>")
	assert.Contains(t, html, `<meta http-equiv="refresh" content="2">`)
	assert.Contains(t, html, "<table></table>")

	out, err = a.Render(&Page{Title: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "refresh")
}

func TestRenderCustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<h1>{{ .Title }}</h1>{{ .Body }}"), 0o644))

	a, err := NewTplAdapter(path)
	require.NoError(t, err)

	out, err := a.Render(&Page{Title: "Downloads", Body: "<p>ok</p>"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Downloads</h1><p>ok</p>", string(out))
}

func TestNewTplAdapterErrors(t *testing.T) {
	_, err := NewTplAdapter(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.html")
	require.NoError(t, os.WriteFile(path, []byte("{{ .Title "), 0o644))

	_, err = NewTplAdapter(path)
	assert.Error(t, err)
}
