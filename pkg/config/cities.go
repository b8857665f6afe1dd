package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// citiesFile is the on-disk YAML roster shape.
type citiesFile struct {
	Cities []cityEntry `yaml:"cities"`
}

type cityEntry struct {
	Banana     string `yaml:"banana"`
	Name       string `yaml:"name"`
	State      string `yaml:"state"`
	Vendor     string `yaml:"vendor"`
	Slug       string `yaml:"slug"`
	Status     string `yaml:"status,omitempty"`
	Token      string `yaml:"token,omitempty"`
	ListingURL string `yaml:"listing_url,omitempty"`
}

// LoadCities reads the YAML city roster and validates every entry. A city
// with no status defaults to active.
func LoadCities(path string) ([]models.City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCitiesFileNotFound, path)
		}
		return nil, fmt.Errorf("reading cities file: %w", err)
	}

	var file citiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing cities file %s: %w", path, err)
	}

	cities := make([]models.City, 0, len(file.Cities))
	for _, entry := range file.Cities {
		status := models.CityStatus(entry.Status)
		if status == "" {
			status = models.CityStatusActive
		}
		city := models.City{
			Banana:     entry.Banana,
			Name:       entry.Name,
			State:      entry.State,
			Vendor:     models.Vendor(entry.Vendor),
			Slug:       entry.Slug,
			Status:     status,
			Token:      entry.Token,
			ListingURL: entry.ListingURL,
		}
		if err := city.Validate(); err != nil {
			return nil, fmt.Errorf("cities file %s: %w", path, err)
		}
		cities = append(cities, city)
	}
	return cities, nil
}
