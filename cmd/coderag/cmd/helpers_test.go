package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/store"
)

const testProjectConfig = `default_repo: demo
data_root: .coderag
repos:
  - name: demo
    keywords: [fax]
  - name: web
    keywords: [theme]
retrieval:
  dense_backend: hnsw
  expansions: 1
rerank:
  backend: none
index:
  enrich: false
telemetry:
  enabled: false
`

// newTestProject writes a project with a demo repo holding two snippets and
// points --project at it.
func newTestProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".coderag.yaml"), []byte(testProjectConfig), 0o644))

	dir := filepath.Join(root, ".coderag", "demo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, store.SnippetsFile))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.WriteSnippets(f, []store.Snippet{
		{ID: "s1", FilePath: "api/app/outbound.py", StartLine: 1, EndLine: 3, Language: "python", Layer: "server",
			Hash: "h1", Symbols: []string{"send_fax"}, Code: "def send_fax(to, pdf):\n    \"\"\"Queue an outbound fax.\"\"\"\n"},
		{ID: "s2", FilePath: "web/src/Theme.tsx", StartLine: 1, EndLine: 1, Language: "typescript", Layer: "frontend",
			Hash: "h2", Symbols: []string{"Theme"}, Code: "export const Theme = { color: 'blue' }\n"},
	}))

	prev := globals
	globals = globalOptions{project: root, noColor: true}
	t.Cleanup(func() { globals = prev })
	return root
}

// execute runs cmd with args and returns its output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
