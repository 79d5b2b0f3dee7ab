package resolve

import (
	"errors"
	"testing"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
)

func TestReadVersionFile(t *testing.T) {
	tests := []struct {
		name      string
		makefile  string
		withExtra bool
		want      string
	}{
		{"kernel", "VERSION = 5\nPATCHLEVEL = 10\nSUBLEVEL = 0\nEXTRAVERSION = -custom\n", true, "5.10.0-custom"},
		{"without extra", "VERSION = 5\nPATCHLEVEL = 10\nSUBLEVEL = 0\nEXTRAVERSION = -custom\n", false, "5.10.0"},
		{"no sublevel", "VERSION = 2023\nPATCHLEVEL = 10\n", true, "2023.10"},
		{"package version", "PACKAGE_VERSION = 1.4.2\n", true, "1.4.2"},
		{"immediate assignment", "VERSION := 3\nPATCHLEVEL := 1\n", false, "3.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadVersionFile(writeMakefile(t, tt.makefile), tt.withExtra)
			if err != nil {
				t.Fatalf("ReadVersionFile: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadVersionFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadVersionFileErrors(t *testing.T) {
	if _, err := ReadVersionFile("", true); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := ReadVersionFile(t.TempDir(), true); err == nil {
		t.Error("expected error for missing Makefile")
	}
}

func TestReadVersionFileFromMake(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	dir := writeMakefile(t, "include version.mk\n")

	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: `print-VERSION$`, Output: "\n"},
		{Pattern: `print-PACKAGE_VERSION$`, Output: "7.1\n"},
	})
	got, err := ReadVersionFile(dir, true)
	if err != nil {
		t.Fatalf("ReadVersionFile: %v", err)
	}
	if got != "7.1" {
		t.Errorf("ReadVersionFile() = %q, want 7.1", got)
	}

	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: `make`, Error: errors.New("make: *** No rule")},
	})
	if _, err := ReadVersionFile(dir, true); !errors.Is(err, ErrNoVersion) {
		t.Errorf("expected ErrNoVersion, got %v", err)
	}
}
