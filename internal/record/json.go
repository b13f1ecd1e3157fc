package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Load reads a record from path. hashField selects the dependency hash key;
// empty means DefaultHashField.
func Load(path, hashField string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}

	r := &Record{HashField: hashField}
	if r.Version, err = takeString(raw, "version"); err != nil {
		return nil, err
	}
	if r.Version == "" {
		return nil, fmt.Errorf("record %s has no version", path)
	}
	if r.Hash, err = takeString(raw, "hash"); err != nil {
		return nil, err
	}
	if r.DepsHash, err = takeString(raw, r.field()); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		r.extra = raw
	}

	return r, nil
}

func takeString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", nil
	}
	delete(raw, key)
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("record field %q is %T, want string", key, v)
	}
	return s, nil
}

// Marshal encodes the record as indented JSON with a trailing newline.
// Keys come in the order version, hash, dependency hash, followed by any
// unmanaged keys sorted by name.
func (r *Record) Marshal() ([]byte, error) {
	type field struct {
		key   string
		value any
	}
	fields := []field{
		{"version", r.Version},
		{"hash", r.Hash},
		{r.field(), r.DepsHash},
	}

	extra := make([]string, 0, len(r.extra))
	for k := range r.extra {
		if k != "version" && k != "hash" && k != r.field() {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fields = append(fields, field{k, r.extra[k]})
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range fields {
		key, err := encodeJSON(f.key)
		if err != nil {
			return nil, fmt.Errorf("marshaling record key %q: %w", f.key, err)
		}
		value, err := encodeJSON(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshaling record field %q: %w", f.key, err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// encodeJSON encodes v as a value nested one level inside the record.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Save writes the record to path.
func (r *Record) Save(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	return nil
}
