// Package nix resolves fixed-output dependency hashes by building a
// package against a placeholder and reading back the hash Nix reports.
package nix

import (
	"context"
	"errors"
	"regexp"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/hash"
	"github.com/anthr76/pkgbump/internal/logger"
	"github.com/anthr76/pkgbump/internal/record"
)

var (
	errBuildSucceeded = errors.New("build succeeded with the placeholder hash; the hash field is probably not wired into the derivation")
	errNoHashReported = errors.New("build reported a hash mismatch but no replacement hash could be parsed")

	// gotPattern matches the "got:" line of a fixed-output hash mismatch,
	// in SRI or the older sha256:<nix32> form.
	gotPattern = regexp.MustCompile(`got:\s+(sha256-[A-Za-z0-9+/]+=*|sha256:[0-9a-z]{52})`)
	// mismatchPattern detects that a mismatch happened at all.
	mismatchPattern = regexp.MustCompile(`hash mismatch in fixed-output derivation`)
)

// Resolver runs nix build from Dir.
type Resolver struct {
	Runner command.Runner
	// Dir is the flake root.
	Dir string
}

// NewResolver creates a Resolver building from the flake in dir.
func NewResolver(runner command.Runner, dir string) *Resolver {
	return &Resolver{Runner: runner, Dir: dir}
}

// Resolve stores the placeholder under field in rec, saves rec to
// recordPath, builds attr and returns the hash Nix expected. rec is left
// holding the placeholder; the caller decides whether to persist the
// returned hash.
func (r *Resolver) Resolve(ctx context.Context, attr, field, recordPath string, rec *record.Record) (string, error) {
	rec.HashField = field
	rec.DepsHash = hash.DummySHA256
	if err := rec.Save(recordPath); err != nil {
		return "", &Error{Kind: KindOther, Field: field, Err: err}
	}

	logger.DebugKV(ctx, "building with placeholder hash", "attr", attr, "field", field, "dir", r.Dir)

	res, err := r.Runner.Run(ctx, command.Cmd{
		Name: "nix",
		Args: []string{
			"--extra-experimental-features", "nix-command flakes",
			"build", "--no-link", "--log-format", "bar-with-logs", attr,
		},
		Dir: r.Dir,
	})
	if err == nil {
		return "", &Error{Kind: KindHashMismatch, Field: field, Err: errBuildSucceeded}
	}
	if ctx.Err() != nil {
		return "", &Error{Kind: KindOther, Field: field, Err: ctx.Err()}
	}

	var output string
	if res != nil {
		output = string(res.Stderr) + string(res.Stdout)
	}

	got, ok := ExtractHash(output)
	if ok {
		logger.DebugKV(ctx, "resolved dependency hash", "field", field, "hash", got)
		return got, nil
	}
	if mismatchPattern.MatchString(output) {
		return "", &Error{Kind: KindHashMismatch, Field: field, Err: errNoHashReported}
	}
	return "", &Error{Kind: KindBuildInvocation, Field: field, Err: err}
}

// ExtractHash returns the first reported replacement hash in build output,
// converted to SRI. The placeholder itself is never returned.
func ExtractHash(output string) (string, bool) {
	for _, m := range gotPattern.FindAllStringSubmatch(output, -1) {
		h := m[1]
		if h[len("sha256")] == ':' {
			sri, err := hash.Nix32ToSRI(h)
			if err != nil {
				continue
			}
			h = sri
		}
		if h == hash.DummySHA256 || hash.ValidateSRI(h) != nil {
			continue
		}
		return h, true
	}
	return "", false
}
