package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
name: tracker
version: 2
entities:
  - name: Task
    properties:
      - name: title
        type: string
      - name: priority
        type: int
        indexed: true
`

func TestParseValid(t *testing.T) {
	m, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if m.Name != "tracker" || m.Version != 2 {
		t.Errorf("got %s v%d, want tracker v2", m.Name, m.Version)
	}

	ent := m.Entity("Task")
	if ent == nil {
		t.Fatal("Task entity not found")
	}
	if p := ent.Property("priority"); p == nil || p.Type != TypeInt || !p.Indexed {
		t.Errorf("priority property = %+v", p)
	}
	if ent.Property("missing") != nil {
		t.Error("unknown property lookup returned a declaration")
	}
	if m.Entity("Ghost") != nil {
		t.Error("unknown entity lookup returned a declaration")
	}
}

func TestParseDefaultsVersion(t *testing.T) {
	m, err := Parse([]byte(`
name: minimal
entities:
  - name: Thing
    properties:
      - name: label
        type: string
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want default 1", m.Version)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed yaml", "entities: [", "failed to parse"},
		{"missing name", "entities: [{name: A, properties: [{name: x, type: string}]}]", "validation failed"},
		{"no entities", "name: empty", "validation failed"},
		{"entity without properties", "name: m\nentities: [{name: A}]", "validation failed"},
		{"bad property type", "name: m\nentities: [{name: A, properties: [{name: x, type: decimal}]}]", "validation failed"},
		{"bad identifier", "name: m\nentities: [{name: 'drop table', properties: [{name: x, type: string}]}]", "validation failed"},
		{"duplicate entity", "name: m\nentities: [{name: A, properties: [{name: x, type: string}]}, {name: A, properties: [{name: x, type: string}]}]", "duplicate entity"},
		{"duplicate property", "name: m\nentities: [{name: A, properties: [{name: x, type: string}, {name: x, type: int}]}]", "duplicate property"},
		{"reserved id property", "name: m\nentities: [{name: A, properties: [{name: id, type: string}]}]", "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("failed to write model: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Name != "tracker" {
		t.Errorf("name = %s", m.Name)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error loading missing file")
	}
}
