package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/inspectbridge/)
// 2. Project config (<dir>/inspectbridge.* and <dir>/.inspectbridge/)
// 3. INSPECTBRIDGE_CONFIG file
// 4. INSPECTBRIDGE_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Servers: make(map[string]types.ServerConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	for _, name := range configFileNames() {
		loadOnce(filepath.Join(globalPath, name), globalPath)
	}

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".inspectbridge")
		for _, name := range configFileNames() {
			loadOnce(filepath.Join(directory, name), directory)
			loadOnce(filepath.Join(projectConfigDir, name), projectConfigDir)
		}
	}

	// 3. INSPECTBRIDGE_CONFIG file override
	if configPath := os.Getenv("INSPECTBRIDGE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. INSPECTBRIDGE_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("INSPECTBRIDGE_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

func configFileNames() []string {
	return []string{
		"inspectbridge.json",
		"inspectbridge.jsonc",
		"inspectbridge.yaml",
		"inspectbridge.yml",
	}
}

// loadConfigFile loads a single config file with interpolation support.
// JSON and JSONC decode through tidwall/jsonc; .yaml/.yml through yaml.v3.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		// Strip JSONC comments using tidwall/jsonc
		data = jsonc.ToJSON(data)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.Hostname != "" {
		target.Hostname = source.Hostname
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.InspectBin != "" {
		target.InspectBin = source.InspectBin
	}
	if source.ViewLogLevel != "" {
		target.ViewLogLevel = source.ViewLogLevel
	}
	if source.PollIntervalMs != 0 {
		target.PollIntervalMs = source.PollIntervalMs
	}
	if source.LaunchTimeoutMs != 0 {
		target.LaunchTimeoutMs = source.LaunchTimeoutMs
	}

	// Merge per-server overrides
	if source.Servers != nil {
		if target.Servers == nil {
			target.Servers = make(map[string]types.ServerConfig)
		}
		for k, v := range source.Servers {
			target.Servers[k] = v
		}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if port := os.Getenv("INSPECTBRIDGE_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Port = n
		}
	}
	if hostname := os.Getenv("INSPECTBRIDGE_HOSTNAME"); hostname != "" {
		config.Hostname = hostname
	}
	if level := os.Getenv("INSPECTBRIDGE_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if bin := os.Getenv("INSPECTBRIDGE_INSPECT_BIN"); bin != "" {
		config.InspectBin = bin
	}
	if level := os.Getenv("INSPECTBRIDGE_VIEW_LOG_LEVEL"); level != "" {
		config.ViewLogLevel = level
	}
	if ms := os.Getenv("INSPECTBRIDGE_LAUNCH_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			config.LaunchTimeoutMs = n
		}
	}
}
