package store

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Config describes store processors. Channels are referenced with
	// 1-based "chN" keys.
	Config struct {
		Reverse      map[string]bool           `yaml:"reverse"`
		Types        map[string]string         `yaml:"types"`
		Endpoints    map[string]EndpointConfig `yaml:"endpoints"`
		Differential []DifferentialConfig      `yaml:"differential"`

		// Skipped holds entries that could not be decoded. Store reports
		// them when configured.
		Skipped []error `yaml:"-"`
	}

	// EndpointConfig is the clamp range of a single channel.
	EndpointConfig struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	}

	// DifferentialConfig is a single differential pair.
	DifferentialConfig struct {
		Left    string `yaml:"left"`
		Right   string `yaml:"right"`
		Inverse bool   `yaml:"inverse"`
	}
)

// UnmarshalYAML decodes every entry on its own. Malformed entries and
// unknown sections are collected in Skipped instead of failing the whole
// document.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	*c = Config{}
	if value.Kind != yaml.MappingNode {
		c.skip("processors: expected mapping, got %s", value.Tag)
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, section := value.Content[i].Value, value.Content[i+1]
		switch key {
		case "reverse":
			c.Reverse = make(map[string]bool)
			decodeEntries(c, key, section, c.Reverse)
		case "types":
			c.Types = make(map[string]string)
			decodeEntries(c, key, section, c.Types)
		case "endpoints":
			c.Endpoints = make(map[string]EndpointConfig)
			decodeEntries(c, key, section, c.Endpoints)
		case "differential":
			c.decodeDifferential(section)
		default:
			c.skip("unknown processors section '%s'", key)
		}
	}
	return nil
}

func decodeEntries[V any](c *Config, section string, node *yaml.Node, dst map[string]V) {
	if node.Kind != yaml.MappingNode {
		c.skip("%s: expected mapping, got %s", section, node.Tag)
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var v V
		if err := node.Content[i+1].Decode(&v); err != nil {
			c.skip("%s %s: %v", section, key, err)
			continue
		}
		dst[key] = v
	}
}

func (c *Config) decodeDifferential(node *yaml.Node) {
	if node.Kind != yaml.SequenceNode {
		c.skip("differential: expected sequence, got %s", node.Tag)
		return
	}
	c.Differential = make([]DifferentialConfig, 0, len(node.Content))
	for i, n := range node.Content {
		var d DifferentialConfig
		if err := n.Decode(&d); err != nil {
			c.skip("differential %d: %v", i, err)
			continue
		}
		c.Differential = append(c.Differential, d)
	}
}

func (c *Config) skip(format string, args ...interface{}) {
	c.Skipped = append(c.Skipped, fmt.Errorf(format, args...))
}

// ParseChannel parses "chN" key and returns 1-based channel number.
func ParseChannel(key string) (int, error) {
	if !strings.HasPrefix(key, "ch") {
		return 0, fmt.Errorf("invalid channel key '%s', expected 'ch1' format", key)
	}
	n, err := strconv.Atoi(key[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid channel key '%s': %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid channel key '%s': channel must be positive", key)
	}
	return n, nil
}
