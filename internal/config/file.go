package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors AppConfig with yaml tags. All fields are optional;
// zero values mean "not set" and are filled from defaults.
type fileConfig struct {
	AccessKey    string `yaml:"accesskey"`
	BaseURL      string `yaml:"baseUrl"`
	UCRIDs       []int  `yaml:"ucrs"`
	ScanInterval string `yaml:"scanInterval"`

	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	APIToken    string `yaml:"apiToken"`

	DataDir    string `yaml:"dataDir"`
	SQLitePath string `yaml:"sqlitePath"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	LogLevel     string `yaml:"logLevel"`
	LogService   string `yaml:"logService"`
	RateLimitRPM int    `yaml:"rateLimitRpm"`
}

// loadFile reads a YAML config file. A missing file is not an error; it
// returns an empty fileConfig so env and defaults still apply.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) scanInterval() (time.Duration, error) {
	if fc.ScanInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(fc.ScanInterval)
	if err != nil {
		return 0, fmt.Errorf("config: invalid scanInterval %q: %w", fc.ScanInterval, err)
	}
	return d, nil
}
