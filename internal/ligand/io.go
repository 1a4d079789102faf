package ligand

import (
	"encoding/json"
	"fmt"

	"github.com/cwbudde/lgadock/internal/fileio"
)

// LoadSpec reads a ligand topology from a JSON file (optionally gzipped).
func LoadSpec(path string) (Spec, error) {
	r, err := fileio.Open(path)
	if err != nil {
		return Spec{}, err
	}
	defer r.Close()

	var spec Spec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return Spec{}, fmt.Errorf("failed to decode ligand %s: %w", path, err)
	}
	return spec, nil
}

// Load reads and builds a ligand.
func Load(path string, limits Limits, ff ForceField) (*Ligand, error) {
	spec, err := LoadSpec(path)
	if err != nil {
		return nil, err
	}
	lig, err := New(spec, limits, ff)
	if err != nil {
		return nil, fmt.Errorf("ligand %s: %w", path, err)
	}
	return lig, nil
}

// SaveSpec writes spec as JSON, gzip-compressed when path ends in .gz.
func SaveSpec(path string, spec Spec) error {
	w, err := fileio.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(spec); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode ligand: %w", err)
	}
	return w.Close()
}
