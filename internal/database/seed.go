package database

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// CourtSeed is the YAML shape of one court definition.
type CourtSeed struct {
	Name     string `yaml:"name"`
	APIType  string `yaml:"api_type"`
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
	Active   *bool  `yaml:"active"`
}

type courtsFile struct {
	Courts []CourtSeed `yaml:"courts"`
}

// SeedCourts loads court definitions from a YAML file and upserts them by
// name. Values may reference environment variables as ${VAR}.
func SeedCourts(db *gorm.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read courts file: %w", err)
	}

	var file courtsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return 0, fmt.Errorf("parse courts file: %w", err)
	}

	for i, seed := range file.Courts {
		if seed.Name == "" {
			return i, fmt.Errorf("court #%d has no name", i+1)
		}

		var court Court
		err := db.Where("name = ?", seed.Name).First(&court).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return i, fmt.Errorf("look up court %q: %w", seed.Name, err)
		}

		court.Name = seed.Name
		court.APIType = APIType(seed.APIType)
		court.BaseURL = seed.BaseURL
		court.Username = seed.Username
		court.Password = seed.Password
		court.APIKey = seed.APIKey
		court.Active = seed.Active == nil || *seed.Active

		if err := db.Save(&court).Error; err != nil {
			return i, fmt.Errorf("save court %q: %w", seed.Name, err)
		}
	}

	return len(file.Courts), nil
}
