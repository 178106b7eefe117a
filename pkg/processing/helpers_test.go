package processing

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/config"
	"github.com/systemstart/stackctl/pkg/gcloud/gcloudtest"
	"github.com/systemstart/stackctl/pkg/steps"
)

const notFound = "ERROR: (gcloud) The resource was not found"

const edgeStack = `
name: edge
steps:
  - id: ip
    kind: global-address
    name: "{{ .NAME_PREFIX }}-ip"
  - id: cert
    kind: ssl-certificate
    name: "{{ .NAME_PREFIX }}-cert"
    dependsOn: [ip]
    params:
      domains: "{{ .domain }}"
`

const armorStack = `
name: armor
steps:
  - id: policy
    kind: security-policy
    name: "{{ .NAME_PREFIX }}-policy"
`

// writeTestFile writes content to a file in dir, failing the test on error.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustParse(t *testing.T, content string) *api.Stack {
	t.Helper()
	s, err := api.ParseStack([]byte(content), "inline")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testOptions(t *testing.T, f *gcloudtest.Fake) Options {
	t.Helper()
	cfg, err := config.New(map[string]string{
		config.KeyProject: "proj",
		config.KeyRegion:  "europe-west4",
		config.KeyPrefix:  "demo",
	})
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		StateDir: t.TempDir(),
		Workers:  2,
		Env:      steps.Env{Runner: f, Config: cfg},
		Context:  map[string]any{"domain": "api.example.com"},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
