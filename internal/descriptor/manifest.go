package descriptor

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"

	"github.com/alecthomas/errors"
	"gopkg.in/yaml.v3"
)

// Load a descriptor manifest. YAML and JSON are both accepted.
//
// A document starting with "{" is JSON and uses the model's JSON field names, eg. "typeParams" and "fanOut". Anything
// else is YAML, eg. "type-params" and "fan-out". Unknown keys are rejected so that typos in directives do not silently
// change a plan.
func Load(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	set := &Set{}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(set); err != nil {
			return nil, errors.Errorf("failed to decode manifest: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(set); err != nil {
			if errors.Is(err, io.EOF) {
				return set, nil
			}
			return nil, errors.Errorf("failed to decode manifest: %w", err)
		}
	}
	for i, svc := range set.Services {
		if svc == nil {
			return nil, errors.Errorf("service %d is empty", i)
		}
		if svc.Type == "" {
			return nil, errors.Errorf("service %d has no type", i)
		}
	}
	return set, nil
}

// LoadFile loads a descriptor manifest from a filesystem.
func LoadFile(fsys fs.FS, path string) (*Set, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	set, err := Load(f)
	if err != nil {
		return nil, errors.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Marshal a set back to its YAML manifest form.
func Marshal(set *Set) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(set); err != nil {
		return nil, errors.Wrap(err, "failed to encode manifest")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
