package config

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// UserSettings represents persistent user preferences
type UserSettings struct {
	// Export settings
	ExportPath        string `json:"exportPath"`
	AutoOpenExportDir bool   `json:"autoOpenExportDir"`

	// Queue settings
	MaxConcurrentTasks int `json:"maxConcurrentTasks"`

	// Defaults applied to new projects
	DefaultFPS     int    `json:"defaultFps"`
	DefaultQuality string `json:"defaultQuality"`
	DefaultBitrate int    `json:"defaultBitrate"`

	// UI preferences
	Theme string `json:"theme"` // "light", "dark", "system"

	// Anonymous install identifier for analytics
	InstallID string `json:"installId,omitempty"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *UserSettings {
	homeDir, _ := os.UserHomeDir()
	exportPath := filepath.Join(homeDir, "Downloads", "clipstudio")

	return &UserSettings{
		ExportPath:         exportPath,
		AutoOpenExportDir:  true,
		MaxConcurrentTasks: 1,
		DefaultFPS:         30,
		DefaultQuality:     Quality1080p,
		DefaultBitrate:     DefaultBitrate,
		Theme:              "system",
	}
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()

	baseDir := filepath.Join(homeDir, ".clipstudio", "settings")
	os.MkdirAll(baseDir, 0755)

	return filepath.Join(baseDir, "settings.json")
}

// LoadSettings loads user settings from disk
func LoadSettings() (*UserSettings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads user settings from an explicit path.
func LoadSettingsFrom(settingsPath string) (*UserSettings, error) {
	// If file doesn't exist, return defaults
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Merge with defaults for any missing fields
	defaults := DefaultSettings()
	if settings.ExportPath == "" {
		settings.ExportPath = defaults.ExportPath
	}
	if settings.MaxConcurrentTasks == 0 {
		settings.MaxConcurrentTasks = defaults.MaxConcurrentTasks
	}
	if settings.DefaultFPS == 0 {
		settings.DefaultFPS = defaults.DefaultFPS
	}
	if settings.DefaultQuality == "" {
		settings.DefaultQuality = defaults.DefaultQuality
	}
	if settings.DefaultBitrate == 0 {
		settings.DefaultBitrate = defaults.DefaultBitrate
	}
	if settings.Theme == "" {
		settings.Theme = defaults.Theme
	}

	return &settings, nil
}

// SaveSettings saves user settings to disk
func SaveSettings(settings *UserSettings) error {
	return SaveSettingsTo(GetSettingsPath(), settings)
}

// SaveSettingsTo saves user settings to an explicit path.
func SaveSettingsTo(settingsPath string, settings *UserSettings) error {
	dir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
