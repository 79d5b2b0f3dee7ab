package pkginfo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRoleComments(t *testing.T) {
	p := &Package{Name: "zlib"}

	if !p.AddRole(RoleRuntime) {
		t.Fatal("first AddRole should report a new role")
	}
	if p.Comment != CommentRuntimeDep {
		t.Errorf("runtime-only comment = %q", p.Comment)
	}

	p.AddRole(RoleBuild)
	if diff := cmp.Diff([]string{RoleBuild, RoleRuntime}, p.ComponentType); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	if p.Comment != CommentBuildRuntimeDep {
		t.Errorf("combined comment = %q", p.Comment)
	}

	if p.AddRole(RoleBuild) {
		t.Error("duplicate AddRole should report false")
	}
}

func TestComponentHasNoComment(t *testing.T) {
	p := &Package{Name: "busybox"}
	p.AddRole(RoleComponent)
	p.AddRole(RoleBuild)
	if p.DependencyOnly() {
		t.Error("component should not be dependency-only")
	}
	if p.Comment != "" {
		t.Errorf("component must not get a dependency comment, got %q", p.Comment)
	}
}

func TestJSONStripsInternalFields(t *testing.T) {
	p := &Package{
		Name:       "linux",
		Version:    "6.6.1",
		CVEVersion: "6.6.1",
		CVEProduct: "linux_kernel",
		License:    "GPL-2.0",
		IsVirtual:  true,
		BuildDir:   "/out/build/linux-6.6.1",
		SrcDir:     "/src/linux",
		Makefile:   "linux/linux.mk",
		Checksums:  []Checksum{{Algorithm: "SHA256", Value: "ab"}},
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, leaked := range []string{"builddir", "BuildDir", "/out/build", "linux.mk", "IsVirtual"} {
		if strings.Contains(s, leaked) {
			t.Errorf("internal field %q leaked into JSON: %s", leaked, s)
		}
	}
	if !strings.Contains(s, `"checksum_value":"ab"`) {
		t.Errorf("checksum not serialized as checksum_value: %s", s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := &Package{
		Name:         "a",
		Dependencies: &Dependencies{Build: []string{"b"}},
		PatchedCVEs:  map[string][]string{"CVE-2020-0001": {"0001.patch"}},
	}
	c := p.Clone()
	c.Dependencies.Build[0] = "changed"
	c.PatchedCVEs["CVE-2020-0001"][0] = "changed"
	if p.Dependencies.Build[0] != "b" || p.PatchedCVEs["CVE-2020-0001"][0] != "0001.patch" {
		t.Error("Clone shares state with the original")
	}
}

func TestMapNames(t *testing.T) {
	m := Map{"zlib": {}, "busybox": {}, "openssl": {}}
	if diff := cmp.Diff([]string{"busybox", "openssl", "zlib"}, m.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}
