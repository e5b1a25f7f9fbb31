package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/AMS/errors"
)

// SystemConfigPath is the lowest-precedence config file
const SystemConfigPath = "/etc/ams/config.toml"

// ProjectConfigName is searched for from the working directory upward
const ProjectConfigName = "am.toml"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	loadedFrom    []string
)

// Load reads the AMS configuration once and caches it.
// Precedence, lowest first: defaults, system, user (~/.ams/am.toml), project, AMS_* env.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(viperLocked())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the shared Viper instance behind Load
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return viperLocked()
}

// LoadWithViper decodes a Config from v
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile reads one TOML file over the defaults, ignoring env and other files
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", configPath)
	}
	return cfg, nil
}

// Sources returns the config files Load merged, lowest precedence first
func Sources() []string {
	mu.Lock()
	defer mu.Unlock()
	viperLocked()
	return append([]string(nil), loadedFrom...)
}

// CandidatePaths lists every file Load considers, lowest precedence first,
// whether or not it exists
func CandidatePaths() []string {
	paths := []string{SystemConfigPath}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ams", ProjectConfigName))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// Reset drops the cached configuration so the next Load re-reads every source
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	loadedFrom = nil
}

func viperLocked() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("AMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)

	loadedFrom = mergeConfigFiles(v, CandidatePaths())
	viperInstance = v
	return v
}

// findProjectConfig returns the nearest am.toml at or above the working directory
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles layers each readable file over v in order.
// Unreadable files are skipped. Returns the files that were merged.
func mergeConfigFiles(v *viper.Viper, paths []string) []string {
	var merged []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		layer := viper.New()
		layer.SetConfigFile(p)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			continue
		}
		// Per leaf key, so a section in a later file keeps the other keys of that section
		for _, key := range layer.AllKeys() {
			v.Set(key, layer.Get(key))
		}
		merged = append(merged, p)
	}
	return merged
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}
