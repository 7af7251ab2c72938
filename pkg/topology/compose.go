package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ComposeFileName is the file read from an experiment directory.
const ComposeFileName = "docker-compose.yml"

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Networks map[string]yaml.Node      `yaml:"networks"`
}

type composeService struct {
	Image    string      `yaml:"image"`
	Build    yaml.Node   `yaml:"build"`
	Networks networkList `yaml:"networks"`
	Ports    []yaml.Node `yaml:"ports"`
}

// networkList accepts both the list and the map form of a service's networks.
type networkList []string

func (n *networkList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*n = names
	case yaml.MappingNode:
		names := make([]string, 0, len(value.Content)/2)
		for i := 0; i < len(value.Content); i += 2 {
			names = append(names, value.Content[i].Value)
		}
		*n = names
	default:
		return fmt.Errorf("line %d: networks must be a list or a map", value.Line)
	}
	return nil
}

// LoadCompose reads docker-compose.yml from dir.
func LoadCompose(dir string) (*Topology, error) {
	data, err := os.ReadFile(filepath.Join(dir, ComposeFileName))
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	return ParseCompose(data)
}

// ParseCompose builds a topology from docker-compose YAML. Services with
// published ports are exposed; services without an image use their name.
func ParseCompose(data []byte) (*Topology, error) {
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	if len(cf.Services) == 0 {
		return nil, fmt.Errorf("compose file defines no services")
	}

	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	slices.Sort(names)

	services := make([]Service, 0, len(names))
	for _, name := range names {
		cs := cf.Services[name]
		image := cs.Image
		if image == "" {
			image = name
		}
		services = append(services, Service{
			Name:     name,
			Image:    image,
			Networks: []string(cs.Networks),
			Exposed:  len(cs.Ports) > 0,
		})
	}

	declared := make([]string, 0, len(cf.Networks))
	for name := range cf.Networks {
		declared = append(declared, name)
	}
	slices.Sort(declared)

	return New(services, declared...)
}
