package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// ConfigField describes one configuration key an adapter needs.
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// ValidateConfigFields checks cfg against the field definitions and
// collects every problem into a single ConfigurationError, so an
// operator fixing credentials sees the full list at once.
func ValidateConfigFields(kind Kind, cfg Config, fields []ConfigField) error {
	var problems []string

	for _, field := range fields {
		value, exists := cfg[field.Key]
		if !exists || strings.TrimSpace(value) == "" {
			if field.Required {
				problems = append(problems, fmt.Sprintf("%s is required", field.Key))
			}
			continue
		}

		if msg := checkFieldValue(field, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Gateway: kind, Fields: problems}
	}
	return nil
}

func checkFieldValue(field ConfigField, value string) string {
	if field.Key == CfgEnvironment {
		if value != EnvironmentTest && value != EnvironmentProduction {
			return fmt.Sprintf("%s must be %q or %q", field.Key, EnvironmentTest, EnvironmentProduction)
		}
		return ""
	}

	if field.Pattern != "" {
		matched, err := regexp.MatchString(field.Pattern, value)
		if err != nil || !matched {
			return fmt.Sprintf("%s does not match required pattern", field.Key)
		}
	}

	if field.MinLength > 0 && len(value) < field.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", field.Key, field.MinLength)
	}
	if field.MaxLength > 0 && len(value) > field.MaxLength {
		return fmt.Sprintf("%s must not exceed %d characters", field.Key, field.MaxLength)
	}
	return ""
}

// IsProduction interprets the environment config value.
func (c Config) IsProduction() bool {
	return c[CfgEnvironment] == EnvironmentProduction
}
