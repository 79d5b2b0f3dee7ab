package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
	"github.com/google/go-cmp/cmp"
)

const sweepOutput = `BUSYBOX_FINAL_RECURSIVE_DEPENDENCIES=skeleton
BUSYBOX_RAWNAME=busybox
ZLIB_RAWNAME=zlib
SKELETON_RAWNAME=skeleton
`

const primaryOutput = `BUSYBOX_VERSION=1.36.1
BUSYBOX_LICENSE=GPL-2.0
BUSYBOX_SITE=https://busybox.net/downloads
BUSYBOX_SOURCE=busybox-1.36.1.tar.bz2
BUSYBOX_BUILDDIR=build/busybox-1.36.1
ZLIB_VERSION=1.3
ZLIB_LICENSE=Zlib
ZLIB_BUILDDIR=build/zlib-1.3
BR2_VERSION=2024.02
BR2_ARCH=arm
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// buildrootFixture lays out a minimal Buildroot tree with a configured
// busybox that pulls in zlib at runtime and skeleton at build time.
func buildrootFixture(t *testing.T) string {
	t.Helper()
	top := t.TempDir()
	writeFile(t, filepath.Join(top, "output", ".config"), `BR2_ARCH="arm"
BR2_DEFCONFIG="/src/configs/qemu_arm_vexpress_defconfig"
BR2_PACKAGE_BUSYBOX=y
BR2_PACKAGE_NOT_BUILT=y
# BR2_PACKAGE_ZLIB is not set
`)
	writeFile(t, filepath.Join(top, "package", "busybox", "busybox.mk"), "BUSYBOX_VERSION = 1.36.1\n")
	writeFile(t, filepath.Join(top, "package", "busybox", "Config.in"),
		"config BR2_PACKAGE_BUSYBOX\n\tbool \"busybox\"\n\tselect BR2_PACKAGE_ZLIB # runtime\n")
	writeFile(t, filepath.Join(top, "package", "busybox", "busybox.hash"),
		"sha256  abc123  busybox-1.36.1.tar.bz2\nsha256  fff  LICENSE\n")
	writeFile(t, filepath.Join(top, "package", "busybox", "0001-fix-CVE-2023-1234.patch"), "--- a\n+++ b\n")
	writeFile(t, filepath.Join(top, "package", "zlib", "zlib.mk"), "ZLIB_VERSION = 1.3\n")
	writeFile(t, filepath.Join(top, "package", "zlib", "Config.in"), "config BR2_PACKAGE_ZLIB\n")
	return top
}

func mockMake(t *testing.T) *shell.MockExecutor {
	t.Helper()
	original := shell.Default
	t.Cleanup(func() { shell.Default = original })
	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "FINAL_RECURSIVE_DEPENDENCIES", Output: sweepOutput},
		{Pattern: "BR2_ARCH", Output: primaryOutput},
		{Pattern: "rev-parse", Error: errors.New("not a git repository")},
	})
	shell.Default = mock
	return mock
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestRunWritesManifest(t *testing.T) {
	t.Setenv(config.OutputDirEnv, "")
	top := buildrootFixture(t)
	mockMake(t)

	res, err := Run(Options{TopDir: top, Config: config.DefaultGlobalConfig(), Now: fixedNow})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantPath := filepath.Join(top, "output", "vigiles", "buildroot-qemu_arm_vexpress-manifest.json")
	if res.Path != wantPath {
		t.Errorf("Path = %s, want %s", res.Path, wantPath)
	}
	if diff := cmp.Diff([]string{"skeleton"}, res.MissingConfigs); diff != "" {
		t.Errorf("missing configs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"skeleton", "zlib"}, res.MissingHashfiles); diff != "" {
		t.Errorf("missing hash files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"skeleton", "zlib"}, res.DependencyOnly); diff != "" {
		t.Errorf("dependency-only mismatch (-want +got):\n%s", diff)
	}

	m := res.Manifest
	if m.Arch != "arm" || m.Machine != "qemu_arm_vexpress" || m.DistroVersion != "2024.02" || m.Date != "2024-06-01" || m.Commit != "Release" {
		t.Errorf("unexpected build context: %+v", m)
	}
	if diff := cmp.Diff([]string{"busybox", "skeleton", "zlib"}, m.Packages.Names()); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}

	bb := m.Packages["busybox"]
	if diff := cmp.Diff(&pkginfo.Dependencies{Build: []string{"skeleton"}, Runtime: []string{"zlib"}}, bb.Dependencies); diff != "" {
		t.Errorf("busybox deps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]pkginfo.Checksum{{Algorithm: "SHA256", Value: "abc123"}}, bb.Checksums); diff != "" {
		t.Errorf("checksums mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"CVE-2023-1234": {"0001-fix-CVE-2023-1234.patch"}}, bb.PatchedCVEs); diff != "" {
		t.Errorf("patched CVEs mismatch (-want +got):\n%s", diff)
	}
	if bb.DownloadLocation != "https://busybox.net/downloads/busybox-1.36.1.tar.bz2" {
		t.Errorf("download location = %s", bb.DownloadLocation)
	}

	zlib := m.Packages["zlib"]
	if zlib.Version != "1.3" || zlib.License != "Zlib" || zlib.Comment != pkginfo.CommentRuntimeDep {
		t.Errorf("unexpected zlib record %+v", zlib)
	}
	sk := m.Packages["skeleton"]
	if sk.Version != "2024.02" || sk.CVEVersion != "2024.02" {
		t.Errorf("dependency-only skeleton should carry the release version, got %s/%s", sk.Version, sk.CVEVersion)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if doc["distro"] != "buildroot" || doc["manifest_version"] != "1.22" {
		t.Errorf("unexpected document header: %v %v", doc["distro"], doc["manifest_version"])
	}
}

func TestRunStrictMode(t *testing.T) {
	t.Setenv(config.OutputDirEnv, "")
	top := buildrootFixture(t)
	mockMake(t)

	cfg := config.DefaultGlobalConfig()
	cfg.RequireAllConfigs = true
	cfg.RequireAllHashfiles = true

	res, err := Run(Options{TopDir: top, Config: cfg, Now: fixedNow})
	if !errors.Is(err, ErrMissingConfigs) || !errors.Is(err, ErrMissingHashfiles) {
		t.Fatalf("expected both strict-mode errors, got %v", err)
	}
	if res == nil {
		t.Fatal("strict failure should still return the result")
	}
	if _, statErr := os.Stat(res.Path); statErr != nil {
		t.Errorf("manifest should be written before strict checks: %v", statErr)
	}
}

func TestRunSBOMFormats(t *testing.T) {
	for _, format := range []string{config.FormatCycloneDX14, config.FormatSPDX23} {
		t.Run(format, func(t *testing.T) {
			t.Setenv(config.OutputDirEnv, "")
			top := buildrootFixture(t)
			mockMake(t)

			cfg := config.DefaultGlobalConfig()
			cfg.SBOMFormat = format
			cfg.ManifestName = "board"
			res, err := Run(Options{TopDir: top, Config: cfg, Now: fixedNow})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			data, err := os.ReadFile(res.Path)
			if err != nil {
				t.Fatal(err)
			}
			var doc map[string]any
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			key := map[string]string{config.FormatCycloneDX14: "bomFormat", config.FormatSPDX23: "spdxVersion"}[format]
			if _, ok := doc[key]; !ok {
				t.Errorf("%s output lacks %s", format, key)
			}
		})
	}
}

func TestRunWriteIntermediate(t *testing.T) {
	t.Setenv(config.OutputDirEnv, "")
	top := buildrootFixture(t)
	mockMake(t)

	cfg := config.DefaultGlobalConfig()
	cfg.WriteIntermediate = true
	if _, err := Run(Options{TopDir: top, Config: cfg, Now: fixedNow}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, phase := range []string{"config-vars", "packages-makevars-raw", "make-vars", "packages-makevars-fixedup", "config-packages"} {
		if _, err := os.Stat(filepath.Join(top, "output", "vigiles", "debug", phase+".json")); err != nil {
			t.Errorf("intermediate %s not written: %v", phase, err)
		}
	}
}

func TestRunNoPackages(t *testing.T) {
	t.Setenv(config.OutputDirEnv, "")
	top := t.TempDir()
	writeFile(t, filepath.Join(top, "output", ".config"), "BR2_PACKAGE_NOT_BUILT=y\n")
	mockMake(t)

	_, err := Run(Options{TopDir: top, Config: config.DefaultGlobalConfig(), Now: fixedNow})
	if !errors.Is(err, ErrNoPackages) {
		t.Fatalf("expected ErrNoPackages, got %v", err)
	}
}

func TestRunMakeFailure(t *testing.T) {
	t.Setenv(config.OutputDirEnv, "")
	top := buildrootFixture(t)
	original := shell.Default
	t.Cleanup(func() { shell.Default = original })
	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "printvars", Error: errors.New("make: *** No rule to make target")},
	})

	if _, err := Run(Options{TopDir: top, Config: config.DefaultGlobalConfig()}); err == nil {
		t.Fatal("expected make failure")
	}
}
