package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sashikomi/data/db/sashikomi.db"
	}
	if cfg.Storage.ArtifactsDir == "" {
		cfg.Storage.ArtifactsDir = "/usr/local/var/sashikomi/data/artifacts"
	}
	if cfg.DataSource.KeyColumn == "" {
		cfg.DataSource.KeyColumn = "id"
	}
	if cfg.DataSource.StatusColumn == "" {
		cfg.DataSource.StatusColumn = "status"
	}
	if cfg.DataSource.UnprocessedStatus == "" {
		cfg.DataSource.UnprocessedStatus = "New"
	}
	if cfg.DataSource.ProcessedStatus == "" {
		cfg.DataSource.ProcessedStatus = "Current"
	}
	if cfg.Convert.PollIntervalMS == 0 {
		cfg.Convert.PollIntervalMS = 1000
	}
	if cfg.Convert.PollMaxAttempts == 0 {
		cfg.Convert.PollMaxAttempts = 30
	}
	if cfg.Convert.TimeoutSeconds == 0 {
		cfg.Convert.TimeoutSeconds = 120
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".docx", ".odt", ".rtf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
