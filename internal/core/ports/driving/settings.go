package driving

import "github.com/DanielTromp/atlas/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, defaults filled in.
	Get() (*domain.Settings, error)

	// Set stores one setting by dot key after validating the result.
	Set(key string, value string) error

	// Keys lists the recognised setting keys.
	Keys() []string

	// Display renders the effective value of key, masking credentials.
	Display(settings *domain.Settings, key string) string

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
