package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Triage is the manually curated metadata of one PoC.
type Triage struct {
	FileName          string `yaml:"file_name" json:"file_name"`
	VulnerableAddress string `yaml:"vulnerable_address" json:"vulnerable_address"`
	Chain             string `yaml:"chain" json:"chain"`
	BlockNumber       uint64 `yaml:"block_number" json:"block_number"`
	Lost              string `yaml:"lost" json:"lost"`
	Vulnerability     string `yaml:"vulnerability" json:"vulnerability"`
	Reference         string `yaml:"link_reference" json:"link_reference"`
	EntryAddress      string `yaml:"entry_point_address" json:"entry_point_address"`
	EntryFunction     string `yaml:"entry_point_function_name" json:"entry_point_function_name"`
	VulnerableCode    string `yaml:"vulnerable_code" json:"vulnerable_code"`
	VulnFunction      string `yaml:"vuln_function" json:"vuln_function"`
}

func (t Triage) validate() error {
	switch {
	case t.FileName == "":
		return fmt.Errorf("triage entry without file_name")
	case t.Chain == "":
		return fmt.Errorf("%s: chain is required", t.FileName)
	case t.EntryAddress == "" || t.EntryFunction == "":
		return fmt.Errorf("%s: entry point is required", t.FileName)
	}
	return nil
}

// LoadTriage reads a YAML list of triage entries keyed by file name.
func LoadTriage(path string) (map[string]Triage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read triage file: %w", err)
	}
	var entries []Triage
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse triage file: %w", err)
	}
	out := make(map[string]Triage, len(entries))
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		out[filepath.Base(e.FileName)] = e
	}
	return out, nil
}
