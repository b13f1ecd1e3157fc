// Package hash computes and converts Nix-compatible content hashes.
package hash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/logger"
)

// DummySHA256 is the placeholder hash Nix reports a mismatch against
// (lib.fakeHash). Builds using it fail and print the real hash.
const DummySHA256 = "sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

// ComputeNARHash computes the NAR hash of path in SRI format.
// It prefers `nix hash path` run through runner and falls back to a pure
// Go serialisation when nix is unavailable or fails. A nil runner skips
// nix entirely.
func ComputeNARHash(ctx context.Context, runner command.Runner, path string) (string, error) {
	if runner != nil {
		h, err := computeWithNix(ctx, runner, path)
		if err == nil {
			return h, nil
		}
		logger.DebugKV(ctx, "nix hash path unavailable, hashing in-process", "path", path, "error", err)
	}

	return ComputeNARHashGo(path)
}

func computeWithNix(ctx context.Context, runner command.Runner, path string) (string, error) {
	res, err := runner.Run(ctx, command.Cmd{
		Name: "nix",
		Args: []string{"--extra-experimental-features", "nix-command", "hash", "path", "--sri", path},
	})
	if err != nil {
		return "", err
	}
	h := strings.TrimSpace(string(res.Stdout))
	if err := ValidateSRI(h); err != nil {
		return "", fmt.Errorf("nix hash path returned %q: %w", h, err)
	}
	return h, nil
}

// ComputeNARHashGo serialises path as a Nix archive and hashes it with SHA256.
func ComputeNARHashGo(path string) (string, error) {
	h := sha256.New()
	if err := WriteNAR(h, path); err != nil {
		return "", fmt.Errorf("computing NAR: %w", err)
	}
	return ToSRI(h.Sum(nil)), nil
}

// WriteNAR writes the NAR serialisation of path to w.
// See https://nixos.org/manual/nix/stable/protocols/nix-archive-format.html
func WriteNAR(w io.Writer, path string) error {
	nw := &narWriter{w: w}
	nw.str("nix-archive-1")
	if nw.err != nil {
		return nw.err
	}
	return nw.node(path)
}

// narWriter accumulates the first write error so the serialiser reads
// as a flat sequence of tokens.
type narWriter struct {
	w   io.Writer
	err error
}

func (n *narWriter) raw(p []byte) {
	if n.err != nil {
		return
	}
	_, n.err = n.w.Write(p)
}

// str writes a length-prefixed token padded to 8 bytes.
func (n *narWriter) str(s string) {
	n.bytes([]byte(s))
}

func (n *narWriter) bytes(data []byte) {
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(data)))
	n.raw(size[:])
	n.raw(data)
	if pad := (8 - len(data)%8) % 8; pad > 0 {
		n.raw(make([]byte, pad))
	}
}

func (n *narWriter) node(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	n.str("(")
	n.str("type")

	switch mode := info.Mode(); {
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		n.str("symlink")
		n.str("target")
		n.str(target)

	case mode.IsRegular():
		n.str("regular")
		if mode&0o111 != 0 {
			n.str("executable")
			n.str("")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		n.str("contents")
		n.bytes(data)

	case mode.IsDir():
		n.str("directory")
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
		for _, entry := range entries {
			n.str("entry")
			n.str("(")
			n.str("name")
			n.str(entry.Name())
			n.str("node")
			if err := n.node(filepath.Join(path, entry.Name())); err != nil {
				return err
			}
			n.str(")")
		}

	default:
		return fmt.Errorf("unsupported file type %s at %s", mode, path)
	}

	n.str(")")
	return n.err
}

// ToSRI converts a raw SHA256 digest to SRI format.
func ToSRI(digest []byte) string {
	return "sha256-" + base64.StdEncoding.EncodeToString(digest)
}
