// Package depgraph computes the build and runtime dependencies of every
// configured package and grows the package set with the dependency-only
// packages they pull in.
package depgraph

import (
	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/resolve"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
)

// DeclarationFinder locates the Config.in of a package.
type DeclarationFinder interface {
	Declaration(name string) (path string, ok bool)
}

// Catalog supplies resolved records for packages discovered as
// dependencies.
type Catalog interface {
	Package(name string) (*pkginfo.Package, bool)
}

// Builder expands a package set to its dependency closure.
type Builder struct {
	Index   *Index
	Finder  DeclarationFinder
	Catalog Catalog
	// IncludeVirtual keeps edges to virtual packages.
	IncludeVirtual bool
	// Release replaces the version of dependency-only packages that are
	// not in the catalog.
	Release string
	Logger  *zap.SugaredLogger
}

// Result is the expanded package set.
type Result struct {
	Packages pkginfo.Map
	// Added lists the dependency-only packages that were created.
	Added []string
	// MissingDeclarations lists packages whose Config.in was not found.
	MissingDeclarations []string
}

// Build computes dependencies for every package of pkgs and for every
// package discovered on the way. pkgs is not modified. Each name is
// expanded exactly once, so cycles in the dependency relation terminate.
func (b *Builder) Build(pkgs pkginfo.Map) *Result {
	log := logger.OrNop(b.Logger)

	res := &Result{Packages: make(pkginfo.Map, len(pkgs))}
	for name, p := range pkgs {
		res.Packages[name] = p.Clone()
	}

	expanded := map[string]bool{}
	missing := map[string]bool{}

	for _, root := range res.Packages.Names() {
		stack := []string{root}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if expanded[cur] {
				continue
			}
			expanded[cur] = true

			runtime, found := b.runtimeDependencies(cur, log)
			if !found {
				missing[b.Index.RawName(cur)] = true
			}
			build := b.Index.Dependencies(cur)
			log.Debugf("Runtime dependencies for %s: %v", cur, runtime)
			log.Debugf("Build dependencies for %s: %v", cur, build)

			var discovered []string
			runtimeEdges := b.include(res, runtime, pkginfo.RoleRuntime, &discovered, log)
			buildEdges := b.include(res, build, pkginfo.RoleBuild, &discovered, log)
			res.Packages[cur].Dependencies = &pkginfo.Dependencies{
				Build:   buildEdges,
				Runtime: runtimeEdges,
			}

			// Push in reverse so the first discovered package is expanded first.
			for i := len(discovered) - 1; i >= 0; i-- {
				stack = append(stack, discovered[i])
			}
		}
	}

	res.Added = slice.SortedUnique(res.Added)
	res.MissingDeclarations = slice.SortedKeys(missing)
	if len(res.MissingDeclarations) > 0 {
		log.Warnf("Config.in not found for packages: %v", res.MissingDeclarations)
	}
	log.Infof("Dependency graph: %d packages, %d dependency-only", len(res.Packages), len(res.Added))
	return res
}

// include tags every dependency in deps with role, creating the packages
// that do not exist yet, and returns the sorted edge list.
func (b *Builder) include(res *Result, deps []string, role string, discovered *[]string, log *zap.SugaredLogger) []string {
	edges := make([]string, 0, len(deps))
	for _, dep := range deps {
		name := b.Index.RawName(dep)
		if !b.IncludeVirtual && b.Index.IsVirtual(name) {
			continue
		}
		edges = append(edges, name)

		if p, ok := res.Packages[name]; ok {
			p.AddRole(role)
			continue
		}
		p := b.materialize(name)
		p.AddRole(role)
		res.Packages[name] = p
		res.Added = append(res.Added, name)
		*discovered = append(*discovered, name)
		log.Debugf("Adding %s dependency %s", role, name)
	}
	return slice.SortedUnique(edges)
}

func (b *Builder) materialize(name string) *pkginfo.Package {
	var p *pkginfo.Package
	if b.Catalog != nil {
		if c, ok := b.Catalog.Package(name); ok {
			p = c
		}
	}
	if p == nil {
		p = &pkginfo.Package{Name: name}
	}
	p.Name = name
	p.ComponentType = nil
	p.Comment = ""
	p.Dependencies = nil
	resolve.ApplyDefaults(name, p)
	resolve.ApplyRelease(p, b.Release)
	return p
}

// runtimeDependencies scans the Config.in of name. found is false when
// no declaration file exists for it.
func (b *Builder) runtimeDependencies(name string, log *zap.SugaredLogger) (deps []string, found bool) {
	raw := b.Index.RawName(name)
	if b.Finder == nil {
		return nil, false
	}
	path, ok := b.Finder.Declaration(raw)
	if !ok {
		return nil, false
	}
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		log.Warnf("Could not read %s: %v", path, err)
		return nil, true
	}

	for _, opt := range RuntimeOptions(data) {
		dep := buildroot.KconfigToKey(opt)
		if info, ok := b.Index.Lookup(opt); ok && info.RawName != "" {
			dep = info.RawName
		}
		if _, known := b.Index.Lookup(dep); !known {
			log.Warnf("%s: dropping runtime dependency %s, not a known package", raw, opt)
			continue
		}
		deps = append(deps, dep)
	}
	return slice.SortedUnique(deps), true
}
