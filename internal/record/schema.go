// Package record reads and writes the per-package hashes.json file.
package record

const (
	// DefaultFile is the record file name inside a package directory.
	DefaultFile = "hashes.json"

	// DefaultHashField is the dependency hash field read by buildRustPackage.
	DefaultHashField = "cargoHash"
)

// Record is the version and hashes a package definition builds from.
type Record struct {
	Version string
	// Hash is the SRI hash of the unpacked source archive.
	Hash string
	// DepsHash is stored under HashField in the JSON file.
	DepsHash string
	// HashField names the dependency hash key. Empty means DefaultHashField.
	HashField string

	// extra keeps keys this tool does not manage so Save round-trips them.
	extra map[string]any
}

// New creates a Record for version with the given hashes.
func New(version, hash, depsHash string) *Record {
	return &Record{
		Version:  version,
		Hash:     hash,
		DepsHash: depsHash,
	}
}

func (r *Record) field() string {
	if r.HashField == "" {
		return DefaultHashField
	}
	return r.HashField
}
