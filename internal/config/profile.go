package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// ProfilePath returns the project profile location inside a workspace.
func ProfilePath(workspace string) string {
	return filepath.Join(workspace, ".conclave", "profile.yaml")
}

// LoadProfile reads a project profile from a YAML file.
// A missing file yields an empty profile and no error.
func LoadProfile(path string) (*models.ProjectProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.ProjectProfile{}, nil
		}
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var profile models.ProjectProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

// SaveProfile writes a project profile as YAML, creating parent directories.
func SaveProfile(path string, profile *models.ProjectProfile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	data, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
