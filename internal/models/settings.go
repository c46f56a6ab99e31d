package models

// Settings holds the singleton client preferences read by the notification
// policy engine. Presentation-only preferences live with the UI layer.
type Settings struct {
	ShowNotifications bool `json:"show_notifications"`
	PlaySound         bool `json:"play_sound"`
}

// DefaultSettings returns the default client settings
func DefaultSettings() *Settings {
	return &Settings{
		ShowNotifications: true,
		PlaySound:         true,
	}
}
