package api

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDeployment(t *testing.T, content string) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), DeploymentFile)
	if err := os.WriteFile(f, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLoadDeployment_Valid(t *testing.T) {
	f := writeDeployment(t, `
context:
  domain: example.com
stacks:
  - name: armor
    builtin: model-armor
  - name: edge
    file: stacks/edge.stack.yaml
    context:
      tier: gold
`)

	d, err := LoadDeployment(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Stacks) != 2 {
		t.Fatalf("expected 2 stacks, got %d", len(d.Stacks))
	}
	if d.Stacks[0].Builtin != "model-armor" {
		t.Errorf("expected builtin 'model-armor', got %q", d.Stacks[0].Builtin)
	}
	if d.Stacks[1].Context["tier"] != "gold" {
		t.Errorf("expected tier=gold, got %v", d.Stacks[1].Context["tier"])
	}
	if d.Dir != filepath.Dir(f) {
		t.Errorf("expected Dir=%q, got %q", filepath.Dir(f), d.Dir)
	}
	want := filepath.Join(filepath.Dir(f), "stacks", "edge.stack.yaml")
	if got := d.StackPath(d.Stacks[1]); got != want {
		t.Errorf("expected stack path %q, got %q", want, got)
	}
}

func TestLoadDeployment_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty list", "stacks: []\n", "stacks list is empty"},
		{"missing name", "stacks:\n  - builtin: iam\n", "name is required"},
		{"duplicate name", "stacks:\n  - name: a\n    builtin: iam\n  - name: a\n    builtin: iam\n", "duplicate name"},
		{"no source", "stacks:\n  - name: a\n", "one of file or builtin is required"},
		{"both sources", "stacks:\n  - name: a\n    builtin: iam\n    file: a.stack.yaml\n", "mutually exclusive"},
		{"invalid yaml", "{{invalid", "parsing deployment file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDeployment(writeDeployment(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadDeployment_FileNotFound(t *testing.T) {
	_, err := LoadDeployment("/nonexistent/stackctl.yaml")
	if err == nil || !strings.Contains(err.Error(), "reading deployment file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStackPath_Absolute(t *testing.T) {
	d := &Deployment{Dir: "/work"}
	if got := d.StackPath(StackRef{File: "/abs/x.stack.yaml"}); got != "/abs/x.stack.yaml" {
		t.Fatalf("unexpected path %q", got)
	}
}
