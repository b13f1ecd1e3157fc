package lockpatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	upstreamManifest = `[package]
name = "localgpt"

[dependencies]
eframe = { version = "0.31", default-features = false, features = ["glow"] }
`
	upstreamLock = `version = 4

[[package]]
name = "eframe"
version = "0.31.1"

[[package]]
name = "glow"
version = "0.16.0"

[[package]]
name = "localgpt"
version = "1.3.0"
`
)

// fakeCargo simulates git clone and cargo update. cargo adds an x11-dl
// entry whenever the manifest enables the x11 feature and addOnX11 is set.
type fakeCargo struct {
	manifest string
	addOnX11 bool
	cloneErr error
	cargoErr error
	calls    []command.Cmd
}

func (f *fakeCargo) Run(_ context.Context, c command.Cmd) (*command.Result, error) {
	f.calls = append(f.calls, c)
	switch c.Name {
	case "git":
		if f.cloneErr != nil {
			return &command.Result{ExitCode: 128}, f.cloneErr
		}
		dir := c.Args[len(c.Args)-1]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(f.manifest), 0o644); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte(upstreamLock), 0o644); err != nil {
			return nil, err
		}
	case "cargo":
		if f.cargoErr != nil {
			return &command.Result{ExitCode: 101}, f.cargoErr
		}
		manifest, err := os.ReadFile(filepath.Join(c.Dir, "Cargo.toml"))
		if err != nil {
			return nil, err
		}
		if f.addOnX11 && strings.Contains(string(manifest), `"x11"`) {
			lock := upstreamLock + "\n[[package]]\nname = \"x11-dl\"\nversion = \"2.21.0\"\n"
			if err := os.WriteFile(filepath.Join(c.Dir, "Cargo.lock"), []byte(lock), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &command.Result{}, nil
}

func newGenerator(t *testing.T, runner command.Runner) (*Generator, string) {
	t.Helper()

	scratch := t.TempDir()
	return &Generator{
		Runner:    runner,
		GitURL:    "https://github.com/localgpt-app/localgpt.git",
		Anchor:    "default-features = false, features = [",
		Features:  []string{"x11", "wayland"},
		PatchPath: filepath.Join(t.TempDir(), "update-lockfile.patch"),
		TempDir:   scratch,
	}, scratch
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directory left behind")
}

func TestGenerateUnchangedWritesEmptyPatch(t *testing.T) {
	runner := &fakeCargo{manifest: upstreamManifest}
	g, scratch := newGenerator(t, runner)
	require.NoError(t, os.WriteFile(g.PatchPath, []byte("stale patch"), 0o644))

	res, err := g.Generate(context.Background(), "1.3.0")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	content, err := os.ReadFile(g.PatchPath)
	require.NoError(t, err)
	assert.Empty(t, content)
	requireEmptyDir(t, scratch)
}

func TestGenerateChangedWritesDiff(t *testing.T) {
	runner := &fakeCargo{manifest: upstreamManifest, addOnX11: true}
	g, scratch := newGenerator(t, runner)

	var progress []string
	g.Progress = func(format string, args ...any) { progress = append(progress, format) }

	res, err := g.Generate(context.Background(), "1.3.0")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	content, err := os.ReadFile(g.PatchPath)
	require.NoError(t, err)
	lines := strings.Split(string(content), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "--- a/Cargo.lock", lines[0])
	assert.Equal(t, "+++ b/Cargo.lock", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "@@ "))
	assert.Contains(t, string(content), "+name = \"x11-dl\"\n")
	assert.Equal(t, strings.Count(string(content), "\n"), res.Lines)
	assert.NotEmpty(t, progress)

	requireEmptyDir(t, scratch)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{
		"clone", "--depth=1", "--single-branch", "--branch=v1.3.0",
		"https://github.com/localgpt-app/localgpt.git",
	}, runner.calls[0].Args[:5])
	assert.Equal(t, []string{"update", "--workspace"}, runner.calls[1].Args)
}

func TestGenerateCloneFailureCleansUp(t *testing.T) {
	runner := &fakeCargo{manifest: upstreamManifest, cloneErr: errors.New("fatal: Remote branch v9.9.9 not found")}
	g, scratch := newGenerator(t, runner)

	_, err := g.Generate(context.Background(), "9.9.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Remote branch")
	requireEmptyDir(t, scratch)

	_, statErr := os.Stat(g.PatchPath)
	assert.True(t, os.IsNotExist(statErr), "patch must not be written on failure")
}

func TestGenerateCargoFailureCleansUp(t *testing.T) {
	runner := &fakeCargo{manifest: upstreamManifest, cargoErr: errors.New("error: failed to select a version")}
	g, scratch := newGenerator(t, runner)

	_, err := g.Generate(context.Background(), "1.3.0")
	require.Error(t, err)
	requireEmptyDir(t, scratch)
}

func TestGenerateAnchorMissing(t *testing.T) {
	manifest := "[dependencies]\neframe = { version = \"0.31\", features = [\n  \"glow\",\n] }\n"
	runner := &fakeCargo{manifest: manifest}
	g, scratch := newGenerator(t, runner)

	_, err := g.Generate(context.Background(), "1.3.0")
	require.ErrorIs(t, err, ErrAnchorNotFound)
	requireEmptyDir(t, scratch)
	assert.Len(t, runner.calls, 1, "cargo must not run on an unpatched manifest")
}

func TestInjectFeatures(t *testing.T) {
	got, err := InjectFeatures(upstreamManifest, "default-features = false, features = [", []string{"x11", "wayland"})
	require.NoError(t, err)
	assert.Contains(t, got, `default-features = false, features = ["x11", "wayland","glow"]`)

	_, err = InjectFeatures("[package]\n", "default-features = false, features = [", []string{"x11"})
	require.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestDiff(t *testing.T) {
	got, err := Diff("a\nb\nc\n", "a\nb\nx\nc\n")
	require.NoError(t, err)

	want := "--- a/Cargo.lock\n" +
		"+++ b/Cargo.lock\n" +
		"@@ -1,3 +1,4 @@\n" +
		" a\n" +
		" b\n" +
		"+x\n" +
		" c\n"
	assert.Equal(t, want, got)
}

func TestDiffMissingTrailingNewline(t *testing.T) {
	tests := []struct {
		name              string
		original, updated string
		want              string
	}{
		{
			name:     "both unterminated",
			original: "x\ny",
			updated:  "x\nz",
			want: "--- a/Cargo.lock\n+++ b/Cargo.lock\n@@ -1,2 +1,2 @@\n x\n" +
				"-y\n\\ No newline at end of file\n" +
				"+z\n\\ No newline at end of file\n",
		},
		{
			name:     "newline added",
			original: "x\ny",
			updated:  "x\ny\n",
			want: "--- a/Cargo.lock\n+++ b/Cargo.lock\n@@ -1,2 +1,2 @@\n x\n" +
				"-y\n\\ No newline at end of file\n" +
				"+y\n",
		},
		{
			name:     "unterminated context",
			original: "a\nz",
			updated:  "a\nb\nz",
			want: "--- a/Cargo.lock\n+++ b/Cargo.lock\n@@ -1,2 +1,3 @@\n a\n" +
				"+b\n" +
				" z\n\\ No newline at end of file\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Diff(tt.original, tt.updated)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiffIdentical(t *testing.T) {
	got, err := Diff("a\nb\n", "a\nb\n")
	require.NoError(t, err)
	assert.Empty(t, got)
}
