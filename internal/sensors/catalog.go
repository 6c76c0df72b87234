package sensors

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultCatalog lists the product names recognised out of the box
var DefaultCatalog = []string{"AH002", "AT001", "AP011", "AS005_LIQU"}

// Catalog is the configured set of recognised product names
type Catalog struct {
	models map[string]Model
}

// NewCatalog builds a catalog from product names. Every name must map to a
// model with a decoder.
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("sensor catalog is empty")
	}

	models := make(map[string]Model, len(names))
	for _, name := range names {
		model, err := ParseModel(name)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q has no decoder: %w", name, err)
		}
		models[name] = model
	}

	return &Catalog{models: models}, nil
}

// Lookup resolves a product name reported by a port
func (c *Catalog) Lookup(productName string) (Model, error) {
	model, ok := c.models[productName]
	if !ok {
		return ModelUnknown, &UnidentifiedSensorError{ProductName: productName}
	}
	return model, nil
}

// Names returns the recognised product names sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Index describes the sensors of one vendor for display purposes
type Index struct {
	Vendor      string      `yaml:"vendor" json:"vendor"`
	Description string      `yaml:"description" json:"description"`
	Website     string      `yaml:"website" json:"website"`
	Sensors     []SensorRef `yaml:"sensors" json:"sensors"`
}

type SensorRef struct {
	ProductName string `yaml:"product_name" json:"product_name"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Datasheet   string `yaml:"datasheet" json:"datasheet,omitempty"`
	Tested      bool   `yaml:"tested" json:"tested"`
}

// LoadIndex liest die Sensor-Beschreibungen aus einer YAML-Datei
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensor index: %w", err)
	}

	var index Index
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse sensor index %s: %w", path, err)
	}

	for _, ref := range index.Sensors {
		if _, err := ParseModel(ref.ProductName); err != nil {
			return nil, fmt.Errorf("sensor index %s: %w", path, err)
		}
	}

	return &index, nil
}

// Describe returns the index entry of a product name, if any
func (i *Index) Describe(productName string) (SensorRef, bool) {
	if i == nil {
		return SensorRef{}, false
	}
	for _, ref := range i.Sensors {
		if ref.ProductName == productName {
			return ref, true
		}
	}
	return SensorRef{}, false
}
