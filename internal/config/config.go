// Package config deserializes alforje.yaml into the plugin forest.
//
// The format is a mapping of plugin names; each plugin carries the reserved
// fields location, config and disabled, and any other mapping-valued key is a
// child plugin:
//
//	luar:
//	  location: https://github.com/gustavo-hms/luar
//	  peneira:
//	    location: https://github.com/gustavo-hms/peneira
//	    config: |
//	      set-option global peneira_files_command 'rg --files'
//
// Declaration order is load order, so decoding goes through yaml.Node rather
// than a map type.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alforje/alforje/internal/tree"
)

// Load reads, parses and validates the configuration file at path. The
// returned forest already has effective disablement propagated.
func Load(path string) (tree.Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	forest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse %s: %w", path, err)
	}
	return forest, nil
}

// Parse decodes configuration bytes into a validated forest.
func Parse(data []byte) (tree.Forest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, fmt.Errorf("configuration file has no YAML element")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("configuration must be a mapping of plugin names")
	}

	var forest tree.Forest
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		node, err := decodePlugin(key.Value, value)
		if err != nil {
			return nil, err
		}
		forest = append(forest, node)
	}
	if len(forest) == 0 {
		return nil, fmt.Errorf("configuration declares no plugins")
	}

	forest.PropagateDisabled()
	if err := forest.Validate(); err != nil {
		return nil, err
	}
	return forest, nil
}

func decodePlugin(name string, m *yaml.Node) (*tree.Node, error) {
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expecting a mapping for plugin %s (line %d)", name, m.Line)
	}

	node := &tree.Node{Name: name}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i], m.Content[i+1]

		switch key.Value {
		case "location":
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("expecting a string for the location field of plugin %s", name)
			}
			node.Location = tree.ParseLocation(value.Value)

		case "config":
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("expecting a string for the config field of plugin %s", name)
			}
			node.Config = value.Value

		case "disabled":
			if err := value.Decode(&node.Disabled); err != nil {
				return nil, fmt.Errorf("expecting a boolean for the disabled field of plugin %s", name)
			}

		default:
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("unexpected field %q in plugin %s (line %d)", key.Value, name, key.Line)
			}
			child, err := decodePlugin(key.Value, value)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}
