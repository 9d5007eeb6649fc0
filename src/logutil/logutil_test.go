package logutil

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(empty)"},
		{"short", "********"},
		{"12345678", "********"},
		{"supersecretvalue", "su...ue"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize("line1\nline2\tx\x00")
	if got != `line1\nline2\tx?` {
		t.Errorf("Sanitize = %q", got)
	}
	long := strings.Repeat("a", 150)
	if got := Sanitize(long); len(got) != 103 {
		t.Errorf("expected truncation to 100 chars + ellipsis, got %d", len(got))
	}
}

func TestSetupWritesToDir(t *testing.T) {
	orig := Dir
	Dir = t.TempDir()
	defer func() {
		Dir = orig
		log.SetOutput(os.Stderr)
	}()

	Setup(true)
	log.Printf("hello from test")

	data, err := os.ReadFile(filepath.Join(Dir, logFileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing entry: %q", data)
	}
}
