// Package config resolves client configuration from a JSON file under the
// user's config dir, with FINSIGHT_* environment variables taking precedence.
package config

type Config struct {
	API     APIConfig
	Storage StorageConfig
	Log     LogConfig
}

type APIConfig struct {
	// BaseURL is the origin of the FinSight backend.
	BaseURL string
	// TimeoutSeconds bounds every HTTP call.
	TimeoutSeconds int
}

type StorageConfig struct {
	// DataDir holds the token slot and the local transcript archive.
	DataDir string
	// DownloadDir receives downloaded report files.
	DownloadDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			DataDir:     defaultDataDir(),
			DownloadDir: ".",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/finsight/config.json and applies FINSIGHT_* environment
// overrides on top of the defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
