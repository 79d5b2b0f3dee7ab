// Package pipeline runs the vigiles-buildroot phases in order: read the
// Buildroot configuration, query make, resolve and expand the package set,
// collect patches and checksums, then assemble and write the output.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
	"github.com/TimesysGit/vigiles-buildroot/internal/collect"
	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/depgraph"
	"github.com/TimesysGit/vigiles-buildroot/internal/ingest"
	"github.com/TimesysGit/vigiles-buildroot/internal/manifest"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/resolve"
	"github.com/TimesysGit/vigiles-buildroot/internal/sbom/cyclonedx"
	"github.com/TimesysGit/vigiles-buildroot/internal/sbom/spdx"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrNoPackages is returned when no configured package has a makefile.
	ErrNoPackages = errors.New("no packages found in the Buildroot configuration")
	// ErrMissingConfigs is returned in strict mode when a Config.in is missing.
	ErrMissingConfigs = errors.New("missing Config.in files")
	// ErrMissingHashfiles is returned in strict mode when a .hash file is missing.
	ErrMissingHashfiles = errors.New("missing hash files")
)

// Options describes one run.
type Options struct {
	// TopDir is the Buildroot source tree.
	TopDir string
	// OutputDir is the Buildroot output directory; defaults to <TopDir>/output.
	OutputDir string
	// BuildDir is the package build directory; defaults to <OutputDir>/build.
	BuildDir string

	Config *config.GlobalConfig
	Logger *zap.SugaredLogger
	// Now is the build date source; time.Now by default.
	Now func() time.Time
}

// Result reports what a run produced.
type Result struct {
	Path              string
	Manifest          *manifest.Manifest
	MissingConfigs    []string
	MissingHashfiles  []string
	DependencyOnly    []string
	OutputDir         string
	BuildrootRevision string
}

type runner struct {
	opts Options
	cfg  *config.GlobalConfig
	log  *zap.SugaredLogger
	vdir string
}

// Run executes the pipeline. The output is written before strict-mode
// conditions are evaluated, so a strict failure still leaves the manifest
// on disk.
func Run(opts Options) (*Result, error) {
	r := &runner{opts: opts, cfg: opts.Config, log: logger.OrNop(opts.Logger)}
	if r.cfg == nil {
		r.cfg = config.DefaultGlobalConfig()
	}
	if r.opts.Now == nil {
		r.opts.Now = time.Now
	}
	if r.opts.TopDir == "" {
		r.opts.TopDir = "."
	}
	if abs, err := filepath.Abs(r.opts.TopDir); err == nil {
		r.opts.TopDir = abs
	}
	if r.opts.OutputDir == "" {
		r.opts.OutputDir = filepath.Join(r.opts.TopDir, "output")
	}
	if r.opts.BuildDir == "" {
		r.opts.BuildDir = filepath.Join(r.opts.OutputDir, "build")
	}
	r.vdir = config.ResolveOutputDir(r.cfg.OutputDir, r.opts.OutputDir, r.log)
	return r.run()
}

func (r *runner) run() (*Result, error) {
	log := r.log
	res := &Result{OutputDir: r.vdir}

	dotConfig, _, err := buildroot.ReadDotConfig(r.opts.OutputDir, r.opts.TopDir, log)
	if err != nil {
		return nil, err
	}
	r.dump("config-vars", dotConfig)
	configured := buildroot.ConfiguredPackages(dotConfig, buildroot.BootDirs(r.opts.TopDir))
	log.Debugf("Configured packages: %v", configured)

	mk := &buildroot.Make{TopDir: r.opts.TopDir, OutputDir: r.opts.OutputDir, Logger: log}
	sweep, err := mk.PrintVars(buildroot.SweepVars)
	if err != nil {
		return nil, err
	}
	index := depgraph.ParseIndex(sweep)

	lines, err := mk.PrintVars(buildroot.PrimaryVars(ingest.Suffixes()))
	if err != nil {
		return nil, err
	}
	raw, err := ingest.Ingest(configured, lines, ingest.Options{Logger: log})
	if err != nil {
		return nil, err
	}
	r.dump("packages-makevars-raw", raw.Packages)
	r.dump("make-vars", raw.Globals)

	revision, err := buildroot.GitRevision(r.opts.TopDir)
	if err != nil {
		log.Debugf("%v", err)
	}
	res.BuildrootRevision = revision
	brVersion := raw.Globals.Meta["version"]

	release := buildroot.ReleaseID(brVersion, revision)
	resolver := &resolve.Resolver{
		Logger:          log,
		IncludeVirtual:  r.cfg.IncludeVirtual,
		Virtual:         index,
		BuildDir:        r.opts.BuildDir,
		Release:         release,
		DefaultSupplier: r.cfg.Supplier,
	}
	catalog := resolver.Resolve(raw.Packages, raw.Globals.Providers)
	r.dump("packages-makevars-fixedup", catalog.Packages)

	roots := append([]string{r.opts.TopDir}, buildroot.ExternalDirs(raw.Globals.Meta["external-dirs"])...)
	tree, err := collect.ScanTree(roots, collect.ScanOptions{OutputDir: r.opts.OutputDir, Logger: log})
	if err != nil {
		return nil, err
	}

	known := collect.KnownPackages(configured, tree)
	if len(known) == 0 {
		return nil, ErrNoPackages
	}
	initial := r.initialPackages(known, catalog, index)
	if len(initial) == 0 {
		return nil, ErrNoPackages
	}

	builder := &depgraph.Builder{
		Index:          index,
		Finder:         tree,
		Catalog:        catalog,
		IncludeVirtual: r.cfg.IncludeVirtual,
		Release:        release,
		Logger:         log,
	}
	graph := builder.Build(initial)
	pkgs := graph.Packages
	res.MissingConfigs = graph.MissingDeclarations
	res.DependencyOnly = graph.Added

	collect.AttachPatches(pkgs, tree, buildroot.GlobalPatchDirs(dotConfig), log)
	res.MissingHashfiles = collect.AttachChecksums(pkgs, tree, log)
	r.dump("config-packages", pkgs)

	am := manifest.LoadAmendments(r.cfg.Amendments, log)
	ctx := manifest.NewBuildContext(dotConfig, brVersion, revision, r.opts.Now())
	m := manifest.Assemble(r.cfg.ManifestName, ctx, pkgs, am, log)
	res.Manifest = m

	res.Path, err = r.write(m)
	if err != nil {
		return nil, err
	}
	return res, r.strict(res)
}

// initialPackages returns the resolved records of the known packages,
// tagged as components.
func (r *runner) initialPackages(known []string, catalog *resolve.Catalog, index *depgraph.Index) pkginfo.Map {
	pkgs := make(pkginfo.Map, len(known))
	for _, name := range known {
		p, ok := catalog.Package(name)
		if !ok {
			if !r.cfg.IncludeVirtual && index.IsVirtual(name) {
				continue
			}
			p = &pkginfo.Package{Name: name}
			resolve.ApplyDefaults(name, p)
		}
		p.AddRole(pkginfo.RoleComponent)
		pkgs[p.Name] = p
	}
	return pkgs
}

func (r *runner) write(m *manifest.Manifest) (string, error) {
	switch r.cfg.SBOMFormat {
	case config.FormatCycloneDX14:
		data, err := cyclonedx.Encode((&cyclonedx.Exporter{Now: r.opts.Now}).Convert(m))
		if err != nil {
			return "", err
		}
		return manifest.WriteFile(data, r.vdir, m.ManifestName, r.log)
	case config.FormatSPDX23:
		doc := spdx.Convert(m, spdx.Options{Logger: r.log, Now: r.opts.Now})
		return manifest.WriteDocument(doc, r.vdir, m.ManifestName, r.log)
	case config.FormatVigiles, "":
		return manifest.Write(m, r.vdir, r.log)
	default:
		return "", fmt.Errorf("%s SBOM format currently not supported", r.cfg.SBOMFormat)
	}
}

func (r *runner) strict(res *Result) error {
	var err error
	if r.cfg.RequireAllConfigs && len(res.MissingConfigs) > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrMissingConfigs, res.MissingConfigs))
	}
	if r.cfg.RequireAllHashfiles && len(res.MissingHashfiles) > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrMissingHashfiles, res.MissingHashfiles))
	}
	return err
}

func (r *runner) dump(phase string, v any) {
	if !r.cfg.WriteIntermediate {
		return
	}
	if err := manifest.WriteIntermediate(r.vdir, phase, v, r.log); err != nil {
		r.log.Warnf("Could not write intermediate file %s: %v", phase, err)
	}
}
