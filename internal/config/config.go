package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIHost() string
	GetSignInPath() string
	GetPublicPaths() []string
	GetFetchTimeout() time.Duration
	GetRequestsPerSecond() float64
	GetJWKSURL() string
}

type StorageConfig interface {
	GetDataFolder() string
	GetDurableStorePath() string
}

type mainConfig struct {
	EnvVars
}

// New returns a configuration backed by environment variables only.
func New() Config {
	return mainConfig{}
}
