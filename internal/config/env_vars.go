package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar           = "APP_NAME"
	envVar               = "ENV"
	logLevelVar          = "LOG_LEVEL"
	apiHostVar           = "API_HOST"
	signInPathVar        = "SIGN_IN_PATH"
	publicPathsVar       = "PUBLIC_PATHS"
	fetchTimeoutVar      = "FETCH_TIMEOUT"
	requestsPerSecondVar = "REQUESTS_PER_SECOND"
	folderEnvVar         = "DATA_FOLDER"
	durableStoreVar      = "DURABLE_STORE"
	jwksURLVar           = "JWKS_URL"
)

// EnvVars resolves settings from the process environment first and then from
// values loaded out of a config file.
type EnvVars struct {
	file map[string]string
}

var _ EnvConfig = EnvVars{}
var _ APIConfig = EnvVars{}
var _ StorageConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.lookup(appNameVar, "Resource Sync")
}

func (e EnvVars) GetEnv() string {
	return e.lookup(envVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.lookup(logLevelVar, "info")
}

// GetAPIHost returns the base URL of the backend (e.g., "https://api.example.com")
func (e EnvVars) GetAPIHost() string {
	return strings.TrimRight(e.lookup(apiHostVar, "http://localhost:8080"), "/")
}

func (e EnvVars) GetSignInPath() string {
	return e.lookup(signInPathVar, "/login")
}

func (e EnvVars) GetPublicPaths() []string {
	raw := e.lookup(publicPathsVar, e.GetSignInPath())
	paths := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// GetFetchTimeout bounds a single resource fetch. Zero means no timeout.
func (e EnvVars) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(e.lookup(fetchTimeoutVar, "0s"))
	if err != nil {
		return 0
	}
	return d
}

// GetRequestsPerSecond limits outgoing API calls. Zero disables the limiter.
func (e EnvVars) GetRequestsPerSecond() float64 {
	rps, err := strconv.ParseFloat(e.lookup(requestsPerSecondVar, "0"), 64)
	if err != nil || rps < 0 {
		return 0
	}
	return rps
}

// GetJWKSURL is the key set used to verify refreshed access tokens. Empty
// disables signature verification.
func (e EnvVars) GetJWKSURL() string {
	return e.lookup(jwksURLVar, "")
}

func (e EnvVars) GetDataFolder() string {
	return e.lookup(folderEnvVar, "./data")
}

func (e EnvVars) GetDurableStorePath() string {
	return e.lookup(durableStoreVar, filepath.Join(e.GetDataFolder(), "storage.db"))
}

func (e EnvVars) lookup(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if value, ok := e.file[name]; ok && value != "" {
		return value
	}
	return defaultValue
}
