package replyset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/daviddao/clockmail_cards/internal/dispatch"
)

type recorder struct {
	lines []string
	fail  string
}

func (r *recorder) Execute(_ context.Context, line string) error {
	r.lines = append(r.lines, line)
	if line == r.fail {
		return errors.New("command failed")
	}
	return nil
}

const sample = `sets:
  - name: actions
    replies:
      - label: ""
        title: trigger
        message: /trigger {{arg::name}}
      - label: cs
        title: greet
        message: |
          /msg {{arg::name}} hello

          /trigger {{ arg::name }}
  - name: members
    replies:
      - label: Alice::qr
        message: /msg all from set {{arg::set}}
      - label: Bob
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replies.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAndList(t *testing.T) {
	lib, err := Load(writeSample(t), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	labels, err := lib.List(context.Background(), "actions")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(labels) != 2 || labels[0] != "" || labels[1] != "cs" {
		t.Errorf("List(actions) = %q", labels)
	}
	if len(lib.Names()) != 2 {
		t.Errorf("Names() = %v", lib.Names())
	}
}

func TestMissingSetAndReply(t *testing.T) {
	lib, err := Load(writeSample(t), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := lib.List(context.Background(), "nope"); !errors.Is(err, dispatch.ErrSetNotFound) {
		t.Errorf("List(nope) err = %v, want ErrSetNotFound", err)
	}
	if _, err := lib.Entry(context.Background(), "members", "Zed"); !errors.Is(err, dispatch.ErrReplyNotFound) {
		t.Errorf("Entry(Zed) err = %v, want ErrReplyNotFound", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	lib, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lib.Names()) != 0 {
		t.Errorf("expected empty library, got %v", lib.Names())
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("sets: {"), 0o644)
	if _, err := Load(path, nil); err == nil {
		t.Error("Load should fail on malformed YAML")
	}
}

func TestExecuteExpandsLines(t *testing.T) {
	rec := &recorder{}
	lib, err := Load(writeSample(t), rec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = lib.Execute(context.Background(), "actions", "cs", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"/msg Bob hello", "/trigger Bob"}
	if len(rec.lines) != len(want) {
		t.Fatalf("lines = %q, want %q", rec.lines, want)
	}
	for i := range want {
		if rec.lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, rec.lines[i], want[i])
		}
	}
}

func TestExecuteStopsOnFailure(t *testing.T) {
	rec := &recorder{fail: "/msg Bob hello"}
	lib, _ := Load(writeSample(t), rec)
	err := lib.Execute(context.Background(), "actions", "cs", map[string]string{"name": "Bob"})
	if err == nil {
		t.Fatal("Execute should report the failing command")
	}
	if len(rec.lines) != 1 {
		t.Errorf("expected execution to stop after first failure, ran %q", rec.lines)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	path := writeSample(t)
	lib, _ := Load(path, nil)
	if err := os.WriteFile(path, []byte("sets:\n  - name: only\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := lib.List(context.Background(), "actions"); err == nil {
		t.Error("actions should be gone after reload")
	}
	if _, err := lib.List(context.Background(), "only"); err != nil {
		t.Errorf("List(only): %v", err)
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/trigger {{arg::name}}", "/trigger Alice"},
		{"{{arg::set}}/{{arg::name}}", "mems/Alice"},
		{"{{arg::unknown}}x", "x"},
		{"no placeholders", "no placeholders"},
	}
	params := map[string]string{"name": "Alice", "set": "mems"}
	for _, tt := range tests {
		if got := Expand(tt.in, params); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewInMemory(t *testing.T) {
	lib := New(nil, Set{Name: "s", Replies: []dispatch.Reply{{Label: "a", Title: "alt"}}})
	r, err := lib.Entry(context.Background(), "s", "a")
	if err != nil || r.Title != "alt" {
		t.Errorf("Entry = %+v, %v", r, err)
	}
	if err := lib.Reload(); err != nil {
		t.Errorf("Reload of in-memory library: %v", err)
	}
}
