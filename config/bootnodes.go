package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bootnode is one entry of nodes.yaml: a peer address as a multiaddr or
// an ENR string.
type Bootnode struct {
	Name      string `yaml:"name"`
	Multiaddr string `yaml:"multiaddr"`
}

// LoadBootnodes loads and parses a nodes.yaml file.
func LoadBootnodes(path string) ([]Bootnode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootnodes: %w", err)
	}

	var nodes []Bootnode
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse bootnodes: %w", err)
	}
	return nodes, nil
}
