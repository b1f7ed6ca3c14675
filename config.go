package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".attachment-replacer"

//go:embed config/settings.yaml
var defaultSettings string

// Settings represents the YAML configuration structure
type Settings struct {
	Server struct {
		URL            string `yaml:"url"`
		Project        int    `yaml:"project"`
		AttachmentType int    `yaml:"attachment_type"`
		PageSize       int    `yaml:"page_size"`
		UploadProtocol string `yaml:"upload_protocol"`
		Auth           string `yaml:"auth"`
	} `yaml:"server"`
	Download struct {
		// Fallback retries the image's original src URL when the
		// attachment file endpoint returns 404.
		Fallback   bool   `yaml:"fallback"`
		StagingDir string `yaml:"staging_dir"`
	} `yaml:"download"`
}

// getConfigPath returns the path to a config file in the config directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// loadSettings loads settings from YAML file with fallback to embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		data = []byte(defaultSettings)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	if settings.Server.PageSize <= 0 {
		settings.Server.PageSize = defaultPageSize
	}
	if settings.Server.UploadProtocol == "" {
		settings.Server.UploadProtocol = protocolMultipart
	}
	if settings.Server.Auth == "" {
		settings.Server.Auth = authBasic
	}

	return &settings, nil
}

// ensureConfigExists creates the config directory and writes the default
// settings file if it doesn't exist yet.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing default settings: %w", err)
		}
	}

	return nil
}
