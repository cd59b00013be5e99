package input

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rfcoverage/internal/types"
)

// towerFile is the YAML layout: either a bare list or a "towers" key.
type towerFile struct {
	Towers []types.Tower `yaml:"towers"`
}

// LoadTowers reads a tower parameter table from YAML (.yaml, .yml) or CSV
// (any other extension). CSV columns use the same attribute names as the
// YAML keys; unknown columns are ignored.
func LoadTowers(path string) ([]types.Tower, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidInput(path, "cannot read tower table", err)
	}

	var towers []types.Tower
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		towers, err = parseTowerYAML(data)
	default:
		towers, err = parseTowerCSV(data)
	}
	if err != nil {
		return nil, invalidInput(path, "cannot parse tower table", err)
	}

	seen := make(map[string]bool, len(towers))
	for i, t := range towers {
		if strings.TrimSpace(t.Site) == "" {
			return nil, invalidInput(path, fmt.Sprintf("tower %d has no site name", i+1), nil)
		}
		if t.Network == "" {
			return nil, invalidInput(path, fmt.Sprintf("tower %q has no network", t.Site), nil)
		}
		if seen[t.Site] {
			return nil, invalidInput(path, fmt.Sprintf("tower %q is listed twice", t.Site), nil)
		}
		seen[t.Site] = true
	}
	return towers, nil
}

func parseTowerYAML(data []byte) ([]types.Tower, error) {
	var list []types.Tower
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f towerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Towers, nil
}

// parseTowerCSV converts each row into an untagged YAML mapping so that cell
// text is resolved to the field types of types.Tower the same way YAML values
// are.
func parseTowerCSV(data []byte) ([]types.Tower, error) {
	t, err := readTable(data)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(types.TowerFields))
	for _, f := range types.TowerFields {
		known[f] = true
	}

	towers := make([]types.Tower, 0, len(t.rows))
	for i, rec := range t.rows {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for col, name := range t.header {
			key := strings.ToLower(strings.TrimSpace(name))
			val := cell(rec, col)
			if !known[key] || val == "" {
				continue
			}
			value := &yaml.Node{Kind: yaml.ScalarNode, Value: val}
			if key == "site" || key == "network" || key == "pol" || key == "units" || key == "col" {
				value.Tag = "!!str"
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				value,
			)
		}
		var tw types.Tower
		if err := node.Decode(&tw); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		tw.Site = types.SanitizeID(tw.Site)
		towers = append(towers, tw)
	}
	return towers, nil
}

// FilterNetwork returns the towers of network, keeping table order. An empty
// network keeps every tower.
func FilterNetwork(towers []types.Tower, network string) []types.Tower {
	if network == "" {
		return towers
	}
	out := make([]types.Tower, 0, len(towers))
	for _, t := range towers {
		if t.Network == network {
			out = append(out, t)
		}
	}
	return out
}
