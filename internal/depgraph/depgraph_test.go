package depgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/google/go-cmp/cmp"
)

type declarations map[string]string

func (d declarations) Declaration(name string) (string, bool) {
	p, ok := d[name]
	return p, ok
}

type catalog pkginfo.Map

func (c catalog) Package(name string) (*pkginfo.Package, bool) {
	p, ok := c[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func writeConfigIn(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name, "Config.in")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing Config.in: %v", err)
	}
	return path
}

func components(names ...string) pkginfo.Map {
	m := pkginfo.Map{}
	for _, n := range names {
		p := &pkginfo.Package{Name: n, Version: "1.0"}
		p.AddRole(pkginfo.RoleComponent)
		m[n] = p
	}
	return m
}

func TestParseIndex(t *testing.T) {
	idx := ParseIndex([]string{
		`LIBOPENSSL_FINAL_RECURSIVE_DEPENDENCIES=host-pkgconf zlib`,
		`LIBOPENSSL_IS_VIRTUAL=`,
		`LIBOPENSSL_RAWNAME=libopenssl`,
		`OPENSSL_IS_VIRTUAL=YES`,
		`OPENSSL_RAWNAME=openssl`,
		`HOST_PKGCONF_RAWNAME=pkgconf`,
		`_RAWNAME=broken`,
		`not a variable`,
	})

	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (%v)", idx.Len(), idx.Names())
	}
	info, ok := idx.Lookup("libopenssl")
	if !ok {
		t.Fatal("libopenssl not indexed")
	}
	want := &Info{RawName: "libopenssl", Dependencies: []string{"host-pkgconf", "zlib"}}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("libopenssl info mismatch (-want +got):\n%s", diff)
	}
	if !idx.IsVirtual("openssl") || idx.IsVirtual("libopenssl") {
		t.Error("virtual flags not parsed")
	}
	if got := idx.RawName("host-pkgconf"); got != "pkgconf" {
		t.Errorf("RawName(host-pkgconf) = %q", got)
	}
	if got := idx.RawName("unknown-pkg"); got != "unknown-pkg" {
		t.Errorf("RawName should fall back to the name, got %q", got)
	}

	var empty *Index
	if _, ok := empty.Lookup("x"); ok || empty.Len() != 0 || empty.RawName("x") != "x" {
		t.Error("nil index should behave as empty")
	}
}

func TestRuntimeOptions(t *testing.T) {
	configIn := []byte(`config BR2_PACKAGE_DROPBEAR
	bool "dropbear"
	select BR2_PACKAGE_ZLIB if !BR2_PACKAGE_DROPBEAR_SMALL # runtime
	select BR2_PACKAGE_LIBTOMCRYPT
	select BR2_PACKAGE_OPENSSH_KEYGEN #run-time
	select BR2_PACKAGE_BUSYBOX # needed at build time
`)
	got := RuntimeOptions(configIn)
	want := []string{"ZLIB", "OPENSSH_KEYGEN"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RuntimeOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTerminatesOnCycle(t *testing.T) {
	idx := ParseIndex([]string{
		"ALPHA_FINAL_RECURSIVE_DEPENDENCIES=beta",
		"BETA_FINAL_RECURSIVE_DEPENDENCIES=alpha",
	})
	b := &Builder{Index: idx}
	res := b.Build(components("alpha"))

	if len(res.Packages) != 2 {
		t.Fatalf("expected alpha and beta exactly once, got %v", res.Packages.Names())
	}
	beta := res.Packages["beta"]
	if diff := cmp.Diff([]string{pkginfo.RoleBuild}, beta.ComponentType); diff != "" {
		t.Errorf("beta roles mismatch (-want +got):\n%s", diff)
	}
	if beta.Comment != pkginfo.CommentBuildDep {
		t.Errorf("beta comment = %q", beta.Comment)
	}
	alpha := res.Packages["alpha"]
	if alpha.Comment != "" || !alpha.HasRole(pkginfo.RoleComponent) || !alpha.HasRole(pkginfo.RoleBuild) {
		t.Errorf("alpha should stay a component and gain the build role: %+v", alpha)
	}
	if diff := cmp.Diff([]string{"beta"}, res.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDependencyOnlyTagging(t *testing.T) {
	dir := t.TempDir()
	finder := declarations{
		"dropbear": writeConfigIn(t, dir, "dropbear", "select BR2_PACKAGE_ZLIB # runtime\n"),
		"zlib":     writeConfigIn(t, dir, "zlib", "config BR2_PACKAGE_ZLIB\n"),
		"openssl":  writeConfigIn(t, dir, "openssl", "config BR2_PACKAGE_OPENSSL\n"),
	}
	idx := ParseIndex([]string{
		"DROPBEAR_FINAL_RECURSIVE_DEPENDENCIES=",
		"ZLIB_FINAL_RECURSIVE_DEPENDENCIES=",
		"OPENSSL_FINAL_RECURSIVE_DEPENDENCIES=zlib",
	})

	t.Run("runtime only", func(t *testing.T) {
		b := &Builder{Index: idx, Finder: finder}
		res := b.Build(components("dropbear"))
		zlib := res.Packages["zlib"]
		if zlib == nil {
			t.Fatal("zlib was not discovered")
		}
		if diff := cmp.Diff([]string{pkginfo.RoleRuntime}, zlib.ComponentType); diff != "" {
			t.Errorf("zlib roles mismatch (-want +got):\n%s", diff)
		}
		if zlib.Comment != pkginfo.CommentRuntimeDep {
			t.Errorf("zlib comment = %q", zlib.Comment)
		}
		if diff := cmp.Diff(&pkginfo.Dependencies{Build: []string{}, Runtime: []string{"zlib"}}, res.Packages["dropbear"].Dependencies); diff != "" {
			t.Errorf("dropbear dependencies mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("runtime then build", func(t *testing.T) {
		b := &Builder{Index: idx, Finder: finder}
		res := b.Build(components("dropbear", "openssl"))
		zlib := res.Packages["zlib"]
		want := []string{pkginfo.RoleBuild, pkginfo.RoleRuntime}
		if diff := cmp.Diff(want, zlib.ComponentType); diff != "" {
			t.Errorf("zlib roles mismatch (-want +got):\n%s", diff)
		}
		if zlib.Comment != pkginfo.CommentBuildRuntimeDep {
			t.Errorf("zlib comment = %q", zlib.Comment)
		}
		if len(res.MissingDeclarations) != 0 {
			t.Errorf("unexpected missing declarations: %v", res.MissingDeclarations)
		}
	})
}

func TestBuildVirtualEdges(t *testing.T) {
	idx := ParseIndex([]string{
		"BUSYBOX_FINAL_RECURSIVE_DEPENDENCIES=skeleton toolchain",
		"TOOLCHAIN_IS_VIRTUAL=YES",
		"TOOLCHAIN_FINAL_RECURSIVE_DEPENDENCIES=toolchain-buildroot",
		"SKELETON_FINAL_RECURSIVE_DEPENDENCIES=",
		"TOOLCHAIN_BUILDROOT_FINAL_RECURSIVE_DEPENDENCIES=",
	})

	excluded := (&Builder{Index: idx}).Build(components("busybox"))
	if _, ok := excluded.Packages["toolchain"]; ok {
		t.Error("virtual dependency must not be materialized when excluded")
	}
	if diff := cmp.Diff([]string{"skeleton"}, excluded.Packages["busybox"].Dependencies.Build); diff != "" {
		t.Errorf("edges to virtual packages must be dropped (-want +got):\n%s", diff)
	}

	included := (&Builder{Index: idx, IncludeVirtual: true}).Build(components("busybox"))
	for _, name := range []string{"toolchain", "toolchain-buildroot", "skeleton"} {
		if _, ok := included.Packages[name]; !ok {
			t.Errorf("%s missing with virtual packages included", name)
		}
	}
}

func TestBuildUsesRawNamesAndCatalog(t *testing.T) {
	idx := ParseIndex([]string{
		"NETSNMP_FINAL_RECURSIVE_DEPENDENCIES=openssl-alias",
		"OPENSSL_ALIAS_RAWNAME=libopenssl",
		"LIBOPENSSL_FINAL_RECURSIVE_DEPENDENCIES=",
	})
	cat := catalog{
		"libopenssl": {Name: "libopenssl", Version: "3.2.0", CVEVersion: "3.2.0", License: "Apache-2.0", ComponentType: []string{"stale"}},
	}
	input := components("netsnmp")
	res := (&Builder{Index: idx, Catalog: cat}).Build(input)

	if diff := cmp.Diff([]string{"libopenssl"}, res.Packages["netsnmp"].Dependencies.Build); diff != "" {
		t.Errorf("edge not fixed to rawname (-want +got):\n%s", diff)
	}
	lib := res.Packages["libopenssl"]
	if lib == nil || lib.Version != "3.2.0" || lib.License != "Apache-2.0" {
		t.Fatalf("discovered package not materialized from catalog: %+v", lib)
	}
	if diff := cmp.Diff([]string{pkginfo.RoleBuild}, lib.ComponentType); diff != "" {
		t.Errorf("catalog roles must be replaced (-want +got):\n%s", diff)
	}
	if _, ok := res.Packages["openssl-alias"]; ok {
		t.Error("alias name must not become a package")
	}
	if input["netsnmp"].Dependencies != nil {
		t.Error("input map must not be modified")
	}
	if diff := cmp.Diff([]string{"libopenssl", "netsnmp"}, res.MissingDeclarations); diff != "" {
		t.Errorf("missing declarations mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildAppliesReleaseToUncatalogedPackages(t *testing.T) {
	idx := ParseIndex([]string{
		"APP_FINAL_RECURSIVE_DEPENDENCIES=libfoo libbar",
		"LIBFOO_FINAL_RECURSIVE_DEPENDENCIES=",
		"LIBBAR_FINAL_RECURSIVE_DEPENDENCIES=",
	})
	cat := catalog{"libbar": {Name: "libbar", Version: "0.9", CVEVersion: "0.9"}}
	res := (&Builder{Index: idx, Catalog: cat, Release: "2024.02"}).Build(components("app"))

	foo := res.Packages["libfoo"]
	if foo == nil || foo.Version != "2024.02" || foo.CVEVersion != "2024.02" {
		t.Fatalf("release fallback not applied: %+v", foo)
	}
	if bar := res.Packages["libbar"]; bar.Version != "0.9" {
		t.Errorf("catalog version overridden: %+v", bar)
	}
}

func TestBuildDropsUnknownRuntimeOption(t *testing.T) {
	dir := t.TempDir()
	finder := declarations{
		"app": writeConfigIn(t, dir, "app", "select BR2_PACKAGE_GHOST # runtime\nselect BR2_PACKAGE_LIBFOO # runtime\n"),
	}
	idx := ParseIndex([]string{
		"APP_FINAL_RECURSIVE_DEPENDENCIES=",
		"LIBFOO_FINAL_RECURSIVE_DEPENDENCIES=",
	})
	res := (&Builder{Index: idx, Finder: finder}).Build(components("app"))
	if diff := cmp.Diff([]string{"libfoo"}, res.Packages["app"].Dependencies.Runtime); diff != "" {
		t.Errorf("runtime deps mismatch (-want +got):\n%s", diff)
	}
	if _, ok := res.Packages["ghost"]; ok {
		t.Error("unknown runtime option must not become a package")
	}
}
