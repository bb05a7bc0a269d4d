package config

// ApplyRemoteSettings overlays the service's persisted key/value settings
// onto the local config. The service is the source of truth for where the
// Lidarr UI lives and for the notification toggle; everything else in its
// settings store (output format, quality presets, path mappings) belongs
// to the excluded configuration UI and is ignored here.
//
// Returns the keys that were applied, for startup logging.
func (c *Config) ApplyRemoteSettings(raw map[string]any) []string {
	var applied []string

	if v, ok := raw["lidarr_url"].(string); ok && v != "" {
		c.Library.URL = v
		applied = append(applied, "lidarr_url")
	}
	if v, ok := raw["notifications_enabled"].(bool); ok {
		c.Agent.Notifications = &v
		applied = append(applied, "notifications_enabled")
	}

	return applied
}
