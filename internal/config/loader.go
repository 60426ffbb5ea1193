package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".prefixscan"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .prefixscan configuration file.
type File struct {
	// Variants maps variant names to their definitions. An entry with a
	// built-in name overrides that variant; any other name adds a variant.
	Variants map[string]VariantConfig `yaml:"variants,omitempty"`

	// Defaults is applied to every variant unless the variant entry
	// overrides the field.
	Defaults VariantConfig `yaml:"defaults,omitempty"`
}

// GetVariantConfig returns the file configuration for a variant, merged
// over the file defaults.
func (cf *File) GetVariantConfig(name string) VariantConfig {
	result := cf.Defaults
	if vc, ok := cf.Variants[name]; ok {
		result = result.merge(vc)
	}
	return result
}

// LoadConfigFile loads variant configurations from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Variants == nil {
		cf.Variants = make(map[string]VariantConfig)
	}

	return &cf, nil
}

// XDGConfigFileName is the configuration file name inside XDGConfigDir.
const XDGConfigFileName = "config.yaml"

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .prefixscan in the current directory
// 3. Look for .prefixscan in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}
	return firstExisting(searchPaths())
}

// searchPaths lists the implicit configuration file locations in order.
func searchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return append(paths, filepath.Join(XDGConfigDir(), XDGConfigFileName))
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
