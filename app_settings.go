package main

import (
	"fmt"
	"log"

	"clipstudio/internal/config"
)

// GetSettings returns the current user settings.
func (a *App) GetSettings() (*config.UserSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings, nil
}

// SaveUserSettings validates and persists settings from the frontend.
func (a *App) SaveUserSettings(settings *config.UserSettings) error {
	if settings == nil {
		return fmt.Errorf("nil settings")
	}

	defaults := config.DefaultProjectSettings()
	probe := config.ProjectSettings{
		FPS:           settings.DefaultFPS,
		Quality:       settings.DefaultQuality,
		CustomBitrate: settings.DefaultBitrate,
	}
	if probe.FPS == 0 {
		probe.FPS = defaults.FPS
	}
	if probe.Quality == "" {
		probe.Quality = defaults.Quality
	}
	if probe.CustomBitrate == 0 {
		probe.CustomBitrate = defaults.CustomBitrate
	}
	if err := probe.Validate(); err != nil {
		return fmt.Errorf("invalid default export settings: %w", err)
	}

	a.mu.Lock()
	// The install ID is backend-owned; the frontend never changes it.
	settings.InstallID = a.settings.InstallID
	a.settings = settings
	a.mu.Unlock()

	if err := config.SaveSettings(settings); err != nil {
		return err
	}
	log.Printf("Settings saved to: %s", config.GetSettingsPath())
	return nil
}

// GetSettingsPath returns the settings file location for display in the UI.
func (a *App) GetSettingsPath() string {
	return config.GetSettingsPath()
}

// GetDefaultProjectSettings returns the export defaults applied to new
// projects, merged from user settings.
func (a *App) GetDefaultProjectSettings() config.ProjectSettings {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := config.ProjectSettings{
		FPS:           a.settings.DefaultFPS,
		Quality:       a.settings.DefaultQuality,
		CustomBitrate: a.settings.DefaultBitrate,
	}
	if s.Validate() != nil {
		return config.DefaultProjectSettings()
	}
	return s
}
