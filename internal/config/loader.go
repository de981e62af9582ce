package config

// Loader builds an AppConfig with the precedence ENV > file > defaults.
type Loader struct {
	path string
}

// NewLoader creates a Loader for an optional config file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load merges file and environment into a validated AppConfig.
func (l *Loader) Load() (AppConfig, error) {
	fc, err := loadFile(l.path)
	if err != nil {
		return AppConfig{}, err
	}

	fileInterval, err := fc.scanInterval()
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		AccessKey:    ParseString("DIVERA_ACCESSKEY", fc.AccessKey),
		BaseURL:      ParseString("DIVERA_BASE_URL", fc.BaseURL),
		UCRIDs:       ParseIntList("DIVERA_UCRS", fc.UCRIDs),
		ScanInterval: ParseDuration("DIVERA_SCAN_INTERVAL", fileInterval),

		ListenAddr:  ParseString("DIVERAD_LISTEN", fc.ListenAddr),
		MetricsAddr: ParseString("DIVERAD_METRICS_ADDR", fc.MetricsAddr),
		APIToken:    ParseString("DIVERAD_API_TOKEN", fc.APIToken),

		DataDir:    ParseString("DIVERAD_DATA", fc.DataDir),
		SQLitePath: ParseString("DIVERAD_SQLITE_PATH", fc.SQLitePath),

		RedisAddr:     ParseString("DIVERAD_REDIS_ADDR", fc.Redis.Addr),
		RedisPassword: ParseString("DIVERAD_REDIS_PASSWORD", fc.Redis.Password),
		RedisDB:       ParseInt("DIVERAD_REDIS_DB", fc.Redis.DB),

		LogLevel:     ParseString("DIVERAD_LOG_LEVEL", fc.LogLevel),
		LogService:   ParseString("DIVERAD_LOG_SERVICE", fc.LogService),
		RateLimitRPM: ParseInt("DIVERAD_RATELIMIT_RPM", fc.RateLimitRPM),
	}

	cfg = cfg.WithDefaults()
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
