package stack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/entstack/entstack/pkg/model"
)

const testModelYAML = `
name: tracker
version: 1
entities:
  - name: Task
    properties:
      - name: title
        type: string
      - name: priority
        type: int
        indexed: true
      - name: done
        type: bool
  - name: Note
    properties:
      - name: body
        type: string
`

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Parse([]byte(testModelYAML))
	if err != nil {
		t.Fatalf("failed to parse test model: %v", err)
	}
	return m
}

// setupMemoryStack initializes a stack over a memory-only store.
func setupMemoryStack(t *testing.T) *Stack {
	t.Helper()
	s := New()
	if err := s.InitializeModel(testModel(t), ""); err != nil {
		t.Fatalf("failed to initialize stack: %v", err)
	}
	t.Cleanup(func() { _ = s.Teardown() })
	return s
}

// setupDiskStack initializes a stack over a disk-persisted store and
// returns the database path.
func setupDiskStack(t *testing.T) (*Stack, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.db")
	s := New()
	if err := s.InitializeModel(testModel(t), path); err != nil {
		t.Fatalf("failed to initialize stack: %v", err)
	}
	t.Cleanup(func() { _ = s.Teardown() })
	return s, path
}

// addTask creates and saves one Task on the default context.
func addTask(t *testing.T, s *Stack, title string, priority int64, done bool) *Instance {
	t.Helper()

	inst, err := s.NewInstance(nil, "Task")
	if err != nil {
		t.Fatalf("failed to create instance: %v", err)
	}
	for name, v := range map[string]any{"title": title, "priority": priority, "done": done} {
		if err := inst.Set(name, v); err != nil {
			t.Fatalf("failed to set %s: %v", name, err)
		}
	}
	if err := s.SaveDefaultContext(); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	return inst
}

func TestInitializeLoadsModelFromFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(modelPath, []byte(testModelYAML), 0o644); err != nil {
		t.Fatalf("failed to write model file: %v", err)
	}

	s := New()
	if err := s.Initialize(modelPath, ""); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	defer s.Teardown()

	if s.DefaultContext() == nil {
		t.Error("no default context after initialize")
	}
}

func TestInitializeRejectsBadModel(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(modelPath, []byte("entities: ["), 0o644); err != nil {
		t.Fatalf("failed to write model file: %v", err)
	}

	s := New()
	if err := s.Initialize(modelPath, ""); err == nil {
		t.Fatal("expected error initializing with unparsable model")
	}
	if err := s.Initialize(filepath.Join(dir, "missing.yaml"), ""); err == nil {
		t.Fatal("expected error initializing with missing model file")
	}
}

func TestDoubleInitialize(t *testing.T) {
	s := setupMemoryStack(t)
	if err := s.InitializeModel(testModel(t), ""); err == nil {
		t.Fatal("expected error initializing an initialized stack")
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s := New()

	if _, err := s.Count(nil, "Task", nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("Count error = %v, want ErrNoContext", err)
	}
	if _, err := s.NewInstance(nil, "Task"); !errors.Is(err, ErrNoContext) {
		t.Errorf("NewInstance error = %v, want ErrNoContext", err)
	}
	if _, err := s.Fetch(nil, "Task", nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("Fetch error = %v, want ErrNoContext", err)
	}
	if _, err := s.NewChildContext(); !errors.Is(err, ErrNoContext) {
		t.Errorf("NewChildContext error = %v, want ErrNoContext", err)
	}

	// Saving with nothing to save is inherently harmless.
	if err := s.SaveDefaultContext(); err != nil {
		t.Errorf("SaveDefaultContext error = %v, want nil", err)
	}
}

func TestTeardownDeletesFileTriplet(t *testing.T) {
	s, path := setupDiskStack(t)

	addTask(t, s, "persisted", 1, false)

	// WAL mode keeps all three files alive while the store is open.
	for _, p := range []string{path, path + "-shm", path + "-wal"} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to exist before teardown: %v", p, err)
		}
	}

	if err := s.Teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}

	for _, p := range []string{path, path + "-shm", path + "-wal"} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be deleted, stat err = %v", p, err)
		}
	}

	// Operations fail cleanly until the stack is initialized again.
	if _, err := s.Count(nil, "Task", nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("Count after teardown = %v, want ErrNoContext", err)
	}

	if err := s.InitializeModel(testModel(t), path); err != nil {
		t.Fatalf("re-initialize failed: %v", err)
	}
	n, err := s.Count(nil, "Task", nil)
	if err != nil {
		t.Fatalf("count after re-initialize failed: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 in fresh store", n)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	s := setupMemoryStack(t)
	if err := s.Teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if err := s.Teardown(); err != nil {
		t.Fatalf("second teardown failed: %v", err)
	}
}

func TestShutdownKeepsFiles(t *testing.T) {
	s, path := setupDiskStack(t)
	addTask(t, s, "kept", 1, false)

	if err := s.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to survive shutdown: %v", path, err)
	}

	if err := s.InitializeModel(testModel(t), path); err != nil {
		t.Fatalf("re-open failed: %v", err)
	}
	n, err := s.Count(nil, "Task", nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 in re-opened store", n)
	}
}

func TestChildContextLifecycle(t *testing.T) {
	s := setupMemoryStack(t)

	child, err := s.NewChildContext()
	if err != nil {
		t.Fatalf("failed to create child context: %v", err)
	}
	if child.Parent() != s.DefaultContext() {
		t.Error("child's parent is not the default context")
	}

	child.Close()
	if _, err := s.Count(child, "Task", nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("Count on closed child = %v, want ErrNoContext", err)
	}
}
