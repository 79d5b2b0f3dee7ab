package buildroot

import (
	"errors"
	"strings"
	"testing"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
	"github.com/google/go-cmp/cmp"
)

func withMock(t *testing.T, cmds []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	orig := shell.Default
	mock := shell.NewMockExecutor(cmds)
	shell.Default = mock
	t.Cleanup(func() { shell.Default = orig })
	return mock
}

func TestPrimaryVars(t *testing.T) {
	got := PrimaryVars([]string{"version", "cve-version"})
	want := []string{
		"%_VERSION", "%_CVE_VERSION",
		"BR2_ARCH", "BR2_DEFCONFIG", "BR2_VERSION", "BR2_EXTERNAL_DIRS",
		"BR2_GCC_TARGET%", "BR2_LINUX_KERNEL%", "BR2_PACKAGE%", "BR2_TARGET_UBOOT%",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PrimaryVars mismatch (-want +got):\n%s", diff)
	}
}

func TestMakeCommand(t *testing.T) {
	m := &Make{TopDir: "/src/buildroot", OutputDir: "/src/buildroot/output"}
	got := m.Command(SweepVars)
	want := "make -C '/src/buildroot' 'O=/src/buildroot/output' BR2_HAVE_DOT_CONFIG=y -s printvars " +
		"'VARS=%_FINAL_RECURSIVE_DEPENDENCIES %_IS_VIRTUAL %_RAWNAME'"
	if got != want {
		t.Errorf("Command =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintVars(t *testing.T) {
	mock := withMock(t, []shell.MockCommand{
		{Pattern: `printvars`, Output: "make: Entering directory\nBUSYBOX_VERSION=1.36.1\nBUSYBOX_LICENSE=GPL-2.0\n\nnoise\n"},
	})

	m := &Make{TopDir: "/src", OutputDir: "/src/output"}
	lines, err := m.PrintVars([]string{"%_VERSION", "%_LICENSE"})
	if err != nil {
		t.Fatalf("PrintVars: %v", err)
	}
	if diff := cmp.Diff([]string{"BUSYBOX_VERSION=1.36.1", "BUSYBOX_LICENSE=GPL-2.0"}, lines); diff != "" {
		t.Errorf("PrintVars lines mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(mock.Executed[0], "LC_ALL=C /usr/bin/make -C") {
		t.Errorf("unexpected command %q", mock.Executed[0])
	}
}

func TestPrintVarsFailure(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: `printvars`, Error: errors.New("exit status 2")},
	})
	m := &Make{}
	if _, err := m.PrintVars(SweepVars); !errors.Is(err, ErrMakeFailed) {
		t.Fatalf("expected ErrMakeFailed, got %v", err)
	}
}

func TestExternalDirs(t *testing.T) {
	got := ExternalDirs("/work/buildroot /work/br2-acme /work/vigiles-buildroot /work/br2-extra")
	if diff := cmp.Diff([]string{"/work/br2-acme", "/work/br2-extra"}, got); diff != "" {
		t.Errorf("ExternalDirs mismatch (-want +got):\n%s", diff)
	}
	if ExternalDirs("") != nil {
		t.Error("empty input should yield nil")
	}
}

func TestGitRevision(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: `git -C '/src/ok' rev-parse HEAD`, Output: "0123456789abcdef0123456789abcdef01234567\n"},
		{Pattern: `git -C '/src/bad' rev-parse HEAD`, Error: errors.New("not a git repository")},
	})

	rev, err := GitRevision("/src/ok")
	if err != nil || rev != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("GitRevision = (%q, %v)", rev, err)
	}
	if _, err := GitRevision("/src/bad"); err == nil {
		t.Error("expected error from failing git")
	}
}

func TestReleaseID(t *testing.T) {
	tests := []struct {
		version, revision, want string
	}{
		{"2024.02", "abc", "2024.02"},
		{"", "abc", "abc"},
		{"", "", "Release"},
	}
	for _, tt := range tests {
		if got := ReleaseID(tt.version, tt.revision); got != tt.want {
			t.Errorf("ReleaseID(%q, %q) = %q, want %q", tt.version, tt.revision, got, tt.want)
		}
	}
}
