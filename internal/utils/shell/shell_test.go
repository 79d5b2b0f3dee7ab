package shell_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
)

func TestGetFullCmdStr(t *testing.T) {
	cmd, err := shell.GetFullCmdStr("echo 'hello'", nil)
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if cmd != "/usr/bin/echo 'hello'" {
		t.Errorf("Expected full path for echo, got: %s", cmd)
	}

	cmd, err = shell.GetFullCmdStr("make -s printvars", []string{"LC_ALL=C"})
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if cmd != "LC_ALL=C /usr/bin/make -s printvars" {
		t.Errorf("unexpected command string: %s", cmd)
	}
}

func TestGetFullCmdStrUnknownCommand(t *testing.T) {
	if _, err := shell.GetFullCmdStr("rm -rf /", nil); err == nil {
		t.Fatal("expected error for command outside commandMap")
	}
	if _, err := shell.GetFullCmdStr("   ", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecCmdOverride(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "printvars", Output: "FOO_VERSION=1.0\n", Error: nil},
		{Pattern: "rev-parse", Output: "", Error: errors.New("not a git repository")},
	})
	shell.Default = mock

	out, err := shell.ExecCmd("make -s printvars VARS='%_VERSION'", nil)
	if err != nil {
		t.Fatalf("ExecCmd with override failed: %v", err)
	}
	if !strings.Contains(out, "FOO_VERSION=1.0") {
		t.Errorf("Expected output to contain 'FOO_VERSION=1.0', got: %s", out)
	}

	if _, err := shell.ExecCmd("git rev-parse HEAD", nil); err == nil {
		t.Error("expected mocked git failure to propagate")
	}

	if _, err := shell.ExecCmd("echo unmatched", nil); err == nil {
		t.Error("expected error for command without mock response")
	}

	if len(mock.Executed) != 3 {
		t.Errorf("expected 3 recorded commands, got %d", len(mock.Executed))
	}
	if !strings.HasPrefix(mock.Executed[0], "/usr/bin/make") {
		t.Errorf("recorded command should be fully resolved, got %q", mock.Executed[0])
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":     "'plain'",
		"%_VERSION": "'%_VERSION'",
		"it's":      `'it'\''s'`,
		"a b":       "'a b'",
		"":          "''",
	}
	for in, want := range tests {
		if got := shell.Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}
