// Package pricing prices cleaning jobs from a service catalog.
// The engine is pure: the same Input always yields the same Breakdown.
package pricing

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DrivewayServiceID is the service that receives concrete-surface pricing.
const DrivewayServiceID = "driveway"

// Zone is a geographic pricing region with its own travel fee.
type Zone struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	TravelFeeCents int64  `yaml:"travelFeeCents" json:"travelFeeCents"`
}

// Service is a priced unit of work.
type Service struct {
	ID              string  `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	Flat            bool    `yaml:"flat" json:"flat"`
	IncludesTravel  bool    `yaml:"includesTravel" json:"includesTravel"`
	BasePriceCents  int64   `yaml:"basePriceCents" json:"basePriceCents"`
	PerSqFtCents    float64 `yaml:"perSqFtCents" json:"perSqFtCents"`
	DurationMinutes int     `yaml:"durationMinutes" json:"durationMinutes"`
}

// AddOn is an optional flat-priced service supplement.
type AddOn struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	PriceCents      int64  `yaml:"priceCents" json:"priceCents"`
	DurationMinutes int    `yaml:"durationMinutes" json:"durationMinutes"`
}

// Catalog is the full set of zones, services and add-ons.
type Catalog struct {
	DefaultZoneID            string    `yaml:"defaultZone"`
	DefaultDepositRate       float64   `yaml:"defaultDepositRate"`
	ConcreteRatePerSqFtCents float64   `yaml:"concreteRatePerSqFtCents"`
	Zones                    []Zone    `yaml:"zones"`
	Services                 []Service `yaml:"services"`
	AddOns                   []AddOn   `yaml:"addOns"`

	zones    map[string]Zone
	services map[string]Service
	addOns   map[string]AddOn
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and indexes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode pricing catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.zones = make(map[string]Zone, len(c.Zones))
	for _, z := range c.Zones {
		c.zones[z.ID] = z
	}
	c.services = make(map[string]Service, len(c.Services))
	for _, s := range c.Services {
		if s.BasePriceCents < 0 || s.PerSqFtCents < 0 {
			return fmt.Errorf("pricing catalog: service %q has a negative rate", s.ID)
		}
		c.services[s.ID] = s
	}
	c.addOns = make(map[string]AddOn, len(c.AddOns))
	for _, a := range c.AddOns {
		c.addOns[a.ID] = a
	}

	if _, ok := c.zones[c.DefaultZoneID]; !ok {
		return fmt.Errorf("pricing catalog: default zone %q is not defined", c.DefaultZoneID)
	}
	if c.DefaultDepositRate <= 0 || c.DefaultDepositRate > 1 {
		return fmt.Errorf("pricing catalog: default deposit rate must be in (0,1]")
	}
	return nil
}

// Zone resolves id, falling back to the default zone for unknown ids.
func (c *Catalog) Zone(id string) Zone {
	if z, ok := c.zones[id]; ok {
		return z
	}
	return c.zones[c.DefaultZoneID]
}

// Service looks up a service by id.
func (c *Catalog) Service(id string) (Service, bool) {
	s, ok := c.services[id]
	return s, ok
}

// AddOn looks up an add-on by id.
func (c *Catalog) AddOn(id string) (AddOn, bool) {
	a, ok := c.addOns[id]
	return a, ok
}
