// Package updater runs the version bump workflow for one package.
package updater

import (
	"context"
	"fmt"
	"io"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/config"
	"github.com/anthr76/pkgbump/internal/fetch"
	"github.com/anthr76/pkgbump/internal/hash"
	"github.com/anthr76/pkgbump/internal/lockpatch"
	"github.com/anthr76/pkgbump/internal/logger"
	"github.com/anthr76/pkgbump/internal/nix"
	"github.com/anthr76/pkgbump/internal/record"
	"github.com/anthr76/pkgbump/internal/version"
)

// TagSource reports the newest upstream version.
type TagSource interface {
	LatestTag(ctx context.Context, owner, repo string) (string, error)
}

// SourceHasher hashes an unpacked source archive.
type SourceHasher interface {
	Prefetch(ctx context.Context, archiveURL string) (string, error)
}

// PatchGenerator rewrites the lockfile patch for a version.
type PatchGenerator interface {
	Generate(ctx context.Context, version string) (*lockpatch.Result, error)
}

// HashResolver resolves the dependency hash through a real build.
type HashResolver interface {
	Resolve(ctx context.Context, attr, field, recordPath string, rec *record.Record) (string, error)
}

// Updater wires the workflow steps together.
type Updater struct {
	Config   *config.Config
	Tags     TagSource
	Source   SourceHasher
	Patch    PatchGenerator
	Resolver HashResolver
	// Out receives progress messages.
	Out io.Writer
}

// New creates an Updater for cfg backed by GitHub, git, cargo and nix.
func New(cfg *config.Config, out io.Writer) (*Updater, error) {
	gh, err := fetch.NewGitHub(cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}

	runner := command.Exec{}
	u := &Updater{
		Config:   cfg,
		Tags:     gh,
		Source:   fetch.NewPrefetcher(runner),
		Resolver: nix.NewResolver(runner, cfg.FlakePath()),
		Out:      out,
	}
	u.Patch = &lockpatch.Generator{
		Runner:    runner,
		GitURL:    cfg.GitURL,
		Anchor:    cfg.ManifestAnchor,
		Features:  cfg.Features,
		PatchPath: cfg.PatchPath(),
		Progress: func(format string, args ...any) {
			u.printf(format+"\n", args...)
		},
	}
	return u, nil
}

// Status is the outcome of a version check.
type Status struct {
	Current string
	Latest  string
	Needed  bool
}

// Check compares the recorded version with the latest upstream tag.
// It never writes.
func (u *Updater) Check(ctx context.Context) (*record.Record, *Status, error) {
	cfg := u.Config

	rec, err := record.Load(cfg.RecordPath(), cfg.HashField)
	if err != nil {
		return nil, nil, err
	}

	latest, err := u.Tags.LatestTag(ctx, cfg.Owner, cfg.Repo)
	if err != nil {
		return nil, nil, err
	}

	needed, err := version.ShouldUpdate(rec.Version, latest)
	if err != nil {
		return nil, nil, fmt.Errorf("comparing versions: %w", err)
	}

	return rec, &Status{Current: rec.Version, Latest: latest, Needed: needed}, nil
}

// Run bumps the package to the latest upstream version. The record is
// saved after the source hash is known and again once the dependency
// hash resolves, so an interrupted run leaves resumable state behind.
// Expected dependency hash failures are reported and leave the
// placeholder in the record without failing the run.
func (u *Updater) Run(ctx context.Context) error {
	cfg := u.Config
	ctx = logger.WithKV(ctx, "package", cfg.Name)

	rec, status, err := u.Check(ctx)
	if err != nil {
		return err
	}

	u.printf("Current: %s, Latest: %s\n", status.Current, status.Latest)
	if !status.Needed {
		u.printf("Already up to date\n")
		return nil
	}

	latest := status.Latest
	u.printf("Updating %s from %s to %s\n", cfg.Name, status.Current, latest)

	u.printf("Calculating source hash...\n")
	archiveURL := fetch.ArchiveURL(cfg.Owner, cfg.Repo, latest)
	sourceHash, err := u.Source.Prefetch(ctx, archiveURL)
	if err != nil {
		return fmt.Errorf("prefetching %s: %w", archiveURL, err)
	}
	logger.DebugKV(ctx, "source hash", "url", archiveURL, "hash", sourceHash)

	if _, err := u.Patch.Generate(ctx, latest); err != nil {
		return fmt.Errorf("regenerating lockfile patch: %w", err)
	}

	rec.Version = latest
	rec.Hash = sourceHash
	rec.HashField = cfg.HashField
	rec.DepsHash = hash.DummySHA256
	if err := rec.Save(cfg.RecordPath()); err != nil {
		return err
	}

	u.printf("Calculating %s...\n", cfg.HashField)
	depsHash, err := u.Resolver.Resolve(ctx, cfg.Attr, cfg.HashField, cfg.RecordPath(), rec)
	if err != nil {
		if nix.IsExpected(err) {
			logger.WarnKV(ctx, "dependency hash not resolved", "field", cfg.HashField, "kind", nix.KindOf(err).String())
			u.printf("Error calculating %s: %v\n", cfg.HashField, err)
			return nil
		}
		return err
	}

	rec.DepsHash = depsHash
	if err := rec.Save(cfg.RecordPath()); err != nil {
		return err
	}
	logger.InfoKV(ctx, "record saved", "path", cfg.RecordPath(), "version", latest, cfg.HashField, depsHash)

	u.printf("Updated %s to %s\n", cfg.Name, latest)
	return nil
}

func (u *Updater) printf(format string, args ...any) {
	if u.Out != nil {
		fmt.Fprintf(u.Out, format, args...)
	}
}
