package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateCommand(t *testing.T) {
	clearEnvironment(t)
	input := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(input, []byte("5\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "fib", "--image", "cds:latest", "-i", input, "-m", "-c", "1-3"})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "Profile is valid: program fib, measure, cpus [1 2 3], runs 3") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestValidateCommand_RejectsCPUListInSingleShot(t *testing.T) {
	clearEnvironment(t)
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"validate", "fib", "--container", "abc", "-i", "in.txt", "-c", "1,2"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for a CPU list outside measure mode")
	}
}

func TestRootCommand_InvalidLogFormat(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"validate", "--log-format", "xml"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unknown log format")
	}
}
