// Package lockpatch regenerates the Cargo.lock patch a package needs when
// it enables cargo features the upstream lockfile was not resolved with.
package lockpatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/logger"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	lockFile     = "Cargo.lock"
	manifestFile = "Cargo.toml"
)

// ErrAnchorNotFound is returned when Cargo.toml no longer contains the
// text features are inserted after.
var ErrAnchorNotFound = errors.New("manifest anchor not found")

// Generator clones a tagged release and diffs its lockfile before and
// after enabling extra features.
type Generator struct {
	Runner command.Runner
	// GitURL is the upstream repository.
	GitURL string
	// Anchor is replaced by itself followed by the quoted Features.
	Anchor   string
	Features []string
	// PatchPath receives the diff, or an empty file when none is needed.
	PatchPath string
	// TempDir is the parent of the scratch directory. Empty means os.TempDir.
	TempDir string
	// Progress receives user-facing status lines.
	Progress func(format string, args ...any)
}

// Result describes the written patch.
type Result struct {
	Changed bool
	Lines   int
}

// Generate writes the lockfile patch for tag v<version>.
func (g *Generator) Generate(ctx context.Context, version string) (*Result, error) {
	tmpDir, err := os.MkdirTemp(g.TempDir, "pkgbump-lockpatch-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	repoDir := filepath.Join(tmpDir, "src")

	g.progress("Cloning source...")
	if _, err := g.Runner.Run(ctx, command.Cmd{
		Name: "git",
		Args: []string{
			"clone", "--depth=1", "--single-branch",
			"--branch=v" + version,
			g.GitURL, repoDir,
		},
	}); err != nil {
		return nil, fmt.Errorf("cloning %s at v%s: %w", g.GitURL, version, err)
	}

	original, err := os.ReadFile(filepath.Join(repoDir, lockFile))
	if err != nil {
		return nil, fmt.Errorf("reading original %s: %w", lockFile, err)
	}

	if err := g.patchManifest(filepath.Join(repoDir, manifestFile)); err != nil {
		return nil, err
	}

	// cargo update --workspace only resolves what the new features pull
	// in; generate-lockfile would bump every dependency.
	g.progress("Updating %s...", lockFile)
	if _, err := g.Runner.Run(ctx, command.Cmd{
		Name: "cargo",
		Args: []string{"update", "--workspace"},
		Dir:  repoDir,
	}); err != nil {
		return nil, fmt.Errorf("updating %s: %w", lockFile, err)
	}

	updated, err := os.ReadFile(filepath.Join(repoDir, lockFile))
	if err != nil {
		return nil, fmt.Errorf("reading updated %s: %w", lockFile, err)
	}

	if bytes.Equal(original, updated) {
		g.progress("No lockfile changes needed, clearing patch")
		if err := os.WriteFile(g.PatchPath, nil, 0o644); err != nil {
			return nil, fmt.Errorf("writing patch: %w", err)
		}
		return &Result{}, nil
	}

	g.progress("Generating lockfile patch...")
	patch, err := Diff(string(original), string(updated))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(g.PatchPath, []byte(patch), 0o644); err != nil {
		return nil, fmt.Errorf("writing patch: %w", err)
	}

	res := &Result{Changed: true, Lines: strings.Count(patch, "\n")}
	g.progress("Wrote %s (%d lines)", filepath.Base(g.PatchPath), res.Lines)
	logger.DebugKV(ctx, "lockfile patch written", "path", g.PatchPath, "lines", res.Lines)
	return res, nil
}

// patchManifest applies the same feature edit as the package's postPatch.
func (g *Generator) patchManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", manifestFile, err)
	}

	patched, err := InjectFeatures(string(data), g.Anchor, g.Features)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", manifestFile, err)
	}
	return nil
}

func (g *Generator) progress(format string, args ...any) {
	if g.Progress != nil {
		g.Progress(format, args...)
	}
}

// InjectFeatures inserts the quoted features right after every occurrence
// of anchor. An absent anchor is an error so a reformatted upstream
// manifest cannot silently produce an unpatched lockfile.
func InjectFeatures(manifest, anchor string, features []string) (string, error) {
	if !strings.Contains(manifest, anchor) {
		return "", fmt.Errorf("%w: %s does not contain %q", ErrAnchorNotFound, manifestFile, anchor)
	}

	var b strings.Builder
	b.WriteString(anchor)
	for _, f := range features {
		fmt.Fprintf(&b, "%q, ", f)
	}
	insert := strings.TrimSuffix(b.String(), " ")

	return strings.ReplaceAll(manifest, anchor, insert), nil
}

// Diff returns a unified diff (three lines of context) from original to
// updated, labelled a/Cargo.lock and b/Cargo.lock.
func Diff(original, updated string) (string, error) {
	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(original),
		B:        splitLines(updated),
		FromFile: "a/" + lockFile,
		ToFile:   "b/" + lockFile,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", lockFile, err)
	}
	return patch, nil
}

// noNewline follows a final line without terminator, as in diff -u.
const noNewline = "\n\\ No newline at end of file\n"

// splitLines keeps line terminators. Unlike difflib.SplitLines it does not
// add a phantom empty line after a trailing newline, which would end up as
// context the real file does not have. An unterminated last line carries
// the "\ No newline at end of file" marker, so it compares unequal to the
// same text with a newline and is emitted the way patch(1) expects.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += noNewline
	return lines
}
