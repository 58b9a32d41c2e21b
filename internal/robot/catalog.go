package robot

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModels []byte

type Model struct {
	Roles       []string          `yaml:"roles"`
	DeviceTypes map[string]string `yaml:"device_types"`
}

// Catalog lists the robot models the panel can drive.
type Catalog struct {
	models map[string]Model
}

type catalogFile struct {
	Models map[string]Model `yaml:"models"`
}

func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultModels)
	if err != nil {
		panic(fmt.Sprintf("robot: embedded catalog: %v", err))
	}
	return catalog
}

// LoadCatalog reads a YAML catalog. Models in the file are added to, or
// replace, the built-in ones. An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	extra, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse model catalog %s: %w", path, err)
	}
	for name, model := range extra.models {
		catalog.models[name] = model
	}
	return catalog, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	models := make(map[string]Model, len(file.Models))
	for name, model := range file.Models {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("model with empty name")
		}
		if len(model.Roles) == 0 {
			return nil, fmt.Errorf("model %s has no roles", name)
		}
		models[name] = model
	}
	return &Catalog{models: models}, nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that model exists and supports role.
func (c *Catalog) Validate(model, role string) error {
	info, ok := c.models[model]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, model)
	}
	for _, candidate := range info.Roles {
		if candidate == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedRole, role)
}

// DeviceType names the worker driver for a robot, falling back to
// "<model>_<role>".
func (c *Catalog) DeviceType(r Robot) string {
	if c != nil {
		if info, ok := c.models[r.Model]; ok {
			if deviceType := info.DeviceTypes[r.Role]; deviceType != "" {
				return deviceType
			}
		}
	}
	return r.Model + "_" + r.Role
}
