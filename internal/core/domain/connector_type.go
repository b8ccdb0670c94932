package domain

import "strings"

// ConnectorType is the catalogue entry for one SourceType: what it is
// called and which settings a SourceSpec of that type must carry.
type ConnectorType struct {
	ID          SourceType
	Name        string
	Description string
	// ConfigKeys are read from SourceSpec.Config.
	ConfigKeys []ConfigKey
	// QueryKeys are read from each SourceQuery.Params.
	QueryKeys []ConfigKey
}

// RequiredKeys lists the config keys a SourceSpec cannot omit, in declaration
// order.
func (c *ConnectorType) RequiredKeys() []string {
	keys := make([]string, 0, len(c.ConfigKeys))
	for _, k := range c.ConfigKeys {
		if k.Required {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// Missing returns the required keys that are absent or blank in config.
func (c *ConnectorType) Missing(config map[string]string) []string {
	var missing []string
	for _, key := range c.RequiredKeys() {
		if strings.TrimSpace(config[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ConfigKey describes one setting of a connector as shown by
// `cityseed source types`.
type ConfigKey struct {
	Key         string
	Label       string
	Description string
	Default     string
	Required    bool
	// Secret values are masked when a source is printed.
	Secret bool
}
