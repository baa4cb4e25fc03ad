package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the environment variables in YAML form.
type fileConfig struct {
	AppName           string   `yaml:"app_name"`
	Env               string   `yaml:"env"`
	LogLevel          string   `yaml:"log_level"`
	APIHost           string   `yaml:"api_host"`
	SignInPath        string   `yaml:"sign_in_path"`
	PublicPaths       []string `yaml:"public_paths"`
	FetchTimeout      string   `yaml:"fetch_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	DataFolder        string   `yaml:"data_folder"`
	DurableStore      string   `yaml:"durable_store"`
	JWKSURL           string   `yaml:"jwks_url"`
}

func (f fileConfig) values() map[string]string {
	values := map[string]string{
		appNameVar:      f.AppName,
		envVar:          f.Env,
		logLevelVar:     f.LogLevel,
		apiHostVar:      f.APIHost,
		signInPathVar:   f.SignInPath,
		publicPathsVar:  strings.Join(f.PublicPaths, ","),
		fetchTimeoutVar: f.FetchTimeout,
		folderEnvVar:    f.DataFolder,
		durableStoreVar: f.DurableStore,
		jwksURLVar:      f.JWKSURL,
	}
	if f.RequestsPerSecond > 0 {
		values[requestsPerSecondVar] = strconv.FormatFloat(f.RequestsPerSecond, 'f', -1, 64)
	}
	return values
}

// Load reads an optional dotenv file into the process environment and an
// optional YAML file. Environment variables take precedence over the YAML
// values. Missing files are not an error.
func Load(envFile, yamlFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config.Load godotenv %s: %w", envFile, err)
		}
	}

	if yamlFile == "" {
		return New(), nil
	}

	data, err := os.ReadFile(yamlFile)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load read %s: %w", yamlFile, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config.Load yaml %s: %w", yamlFile, err)
	}

	return mainConfig{EnvVars: EnvVars{file: fc.values()}}, nil
}
