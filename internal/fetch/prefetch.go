package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/hash"
	"github.com/anthr76/pkgbump/internal/logger"
)

// ArchiveURL is the tarball GitHub serves for tag v<version>.
func ArchiveURL(owner, repo, version string) string {
	return fmt.Sprintf("https://github.com/%s/%s/archive/refs/tags/v%s.tar.gz", owner, repo, version)
}

// Prefetcher computes the hash fetchFromGitHub expects for an archive:
// the NAR hash of its unpacked contents.
type Prefetcher struct {
	Runner command.Runner
	// Client is used by the pure Go fallback. Defaults to http.DefaultClient.
	Client *http.Client
}

// NewPrefetcher creates a Prefetcher that shells out through runner.
func NewPrefetcher(runner command.Runner) *Prefetcher {
	return &Prefetcher{Runner: runner}
}

// Prefetch returns the SRI hash of the unpacked archive at archiveURL.
// It uses nix-prefetch-url when installed and otherwise downloads and
// hashes the archive itself.
func (p *Prefetcher) Prefetch(ctx context.Context, archiveURL string) (string, error) {
	sri, err := p.prefetchWithNix(ctx, archiveURL)
	if errors.Is(err, command.ErrNotInstalled) {
		logger.WarnKV(ctx, "nix-prefetch-url not installed, hashing archive in-process", "url", archiveURL)
		sri, err = p.prefetchGo(ctx, archiveURL)
	}
	if err != nil {
		return "", err
	}

	if err := hash.ValidateSRI(sri); err != nil {
		return "", fmt.Errorf("prefetch of %s returned invalid hash: %w", archiveURL, err)
	}
	return sri, nil
}

func (p *Prefetcher) prefetchWithNix(ctx context.Context, archiveURL string) (string, error) {
	res, err := p.Runner.Run(ctx, command.Cmd{
		Name: "nix-prefetch-url",
		Args: []string{"--unpack", "--type", "sha256", archiveURL},
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(string(res.Stdout))
	// The hash is the last line; --print-path would add the store path after it.
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	if strings.HasPrefix(out, "sha256-") {
		return out, nil
	}

	sri, err := hash.Nix32ToSRI(out)
	if err != nil {
		return "", fmt.Errorf("parsing nix-prefetch-url output %q: %w", out, err)
	}
	return sri, nil
}

func (p *Prefetcher) prefetchGo(ctx context.Context, archiveURL string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pkgbump-prefetch-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := p.download(ctx, archiveURL, tmpDir); err != nil {
		return "", err
	}

	root, err := unpackedRoot(tmpDir)
	if err != nil {
		return "", err
	}

	return hash.ComputeNARHash(ctx, p.Runner, root)
}

func (p *Prefetcher) download(ctx context.Context, archiveURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", archiveURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status: %s", archiveURL, resp.Status)
	}

	if err := ExtractTarGz(resp.Body, dest); err != nil {
		return fmt.Errorf("unpacking %s: %w", archiveURL, err)
	}
	return nil
}

// unpackedRoot mirrors nix-prefetch-url --unpack: an archive holding a
// single top-level directory is hashed from inside that directory.
func unpackedRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// ExtractTarGz unpacks a gzipped tarball into dest. Regular files,
// directories, symlinks and hard links are materialised; hard links become
// copies. Entries whose path escapes dest, or that would be written
// through a symlink, are rejected.
func ExtractTarGz(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	dest = filepath.Clean(dest)

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := entryPath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}

		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.Mode); err != nil {
				return err
			}

		case tar.TypeLink:
			source, err := entryPath(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := copyFile(source, target); err != nil {
				return fmt.Errorf("materialising hard link %q: %w", hdr.Name, err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink: %w", err)
			}

		default:
			// pax_global_header and friends carry no content.
		}
	}
}

// entryPath resolves name inside dest. It fails when name escapes dest
// lexically or when any existing component of the path is a symlink.
func entryPath(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if target == dest {
		return target, nil
	}
	if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry %q escapes destination", name)
	}

	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return "", fmt.Errorf("tar entry %q: %w", name, err)
	}
	cur := dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("tar entry %q: %w", name, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("tar entry %q escapes destination through symlink %s", name, cur)
		}
	}
	return target, nil
}

func writeFile(target string, r io.Reader, tarMode int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	mode := os.FileMode(0o644)
	if tarMode&0o111 != 0 {
		mode = 0o755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	_, err = io.Copy(f, r) //nolint:gosec // archives come from the package's own upstream
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extracting file: %w", err)
	}
	return nil
}

func copyFile(source, target string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("link target %s is not a regular file", source)
	}
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeFile(target, f, int64(info.Mode().Perm()))
}
