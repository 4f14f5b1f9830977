package schema

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed metadata.yaml
var metadataDescriptionsYAML []byte

// loadMetadataDescriptions parses the curated system-table descriptions
// shipped with the binary.
func loadMetadataDescriptions() (map[string]string, error) {
	descriptions := make(map[string]string)
	if err := yaml.Unmarshal(metadataDescriptionsYAML, &descriptions); err != nil {
		return nil, fmt.Errorf("parsing metadata descriptions: %w", err)
	}
	return descriptions, nil
}

// metadataDescription returns the curated description for a system
// table, falling back to a generic one for system tables not listed.
func metadataDescription(descriptions map[string]string, table string) string {
	if d, ok := descriptions[table]; ok {
		return d
	}
	return fmt.Sprintf("System table %s describing the warehouse itself rather than clinical data.", table)
}
