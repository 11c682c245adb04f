package sequences

import (
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/breakup.yaml
var defaultBreakupYAML []byte

// DefaultBreakup returns the built-in breakup sequence for a tenant.
func DefaultBreakup(tenantID uuid.UUID) (Sequence, error) {
	seq, err := ParseDefinition(defaultBreakupYAML)
	if err != nil {
		return Sequence{}, err
	}
	seq.TenantID = tenantID
	return seq, nil
}

// ParseDefinition decodes and validates a YAML sequence definition.
func ParseDefinition(raw []byte) (Sequence, error) {
	var seq Sequence
	if err := yaml.Unmarshal(raw, &seq); err != nil {
		return Sequence{}, fmt.Errorf("decode sequence definition: %w", err)
	}
	if err := seq.Validate(); err != nil {
		return Sequence{}, fmt.Errorf("invalid sequence definition: %w", err)
	}
	return seq, nil
}
