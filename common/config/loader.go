package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvKeyRoot is the environment variable key for runtime root dir
	EnvKeyRoot = "STRAND_ROOT"
	// EnvKeyConfigDir is the environment variable key for config dir
	EnvKeyConfigDir = "STRAND_CONFIG_DIR"
	// EnvKeyEnvironment is the environment variable key for environment
	EnvKeyEnvironment = "STRAND_ENVIRONMENT"
)

const (
	baseFile         = "base.yaml"
	envDevelopment   = "development"
	defaultConfigDir = "config"
)

// Load loads the configuration from a set of yaml config files found in the
// config directory.
//
// The loader first fetches the set of files matching a pre-determined naming
// convention, then sorts them by hierarchy order and after that, simply loads
// the files one after another with the layered config values overwriting the
// previous ones. Hierarchy (low to high): base.yaml, {env}.yaml.
func Load(env string, configDir string, config *Config) error {
	if env == "" {
		env = envDevelopment
	}
	if configDir == "" {
		configDir = defaultConfigDir
	}

	files, err := getConfigFiles(env, configDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("config file %v corrupted: %w", f, err)
		}
	}

	return nil
}

// LoadConfig loads and validates the configuration.
func LoadConfig(env string, configDir string) (*Config, error) {
	config := &Config{}
	if err := Load(env, configDir, config); err != nil {
		return nil, fmt.Errorf("config file corrupted: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// getConfigFiles returns the list of config files to process in the hierarchy
// order
func getConfigFiles(env string, configDir string) ([]string, error) {
	candidates := []string{
		path.Join(configDir, baseFile),
		path.Join(configDir, file(env)),
	}

	var result []string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			result = append(result, c)
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no config files found within %v", configDir)
	}

	return result, nil
}

func file(name string) string {
	return strings.ToLower(name) + ".yaml"
}
