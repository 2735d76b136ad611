package utils

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Env variables recognized for the Gemini credential list. The primary name
// is checked first; the prefixed alternate exists for deployments that
// namespace all their variables. First non-empty wins.
const (
	EnvGeminiKeys       = "GEMINI_API_KEYS"
	EnvGeminiKeysPrefix = "REPOLENS_GEMINI_API_KEYS"
)

type Config struct {
	Gemini struct {
		APIKeys         []string `yaml:"api_keys"`
		Model           string   `yaml:"model"`
		Temperature     float64  `yaml:"temperature"`
		MaxOutputTokens int      `yaml:"max_output_tokens"`
		RequestTimeout  int      `yaml:"request_timeout"`
	} `yaml:"gemini"`

	GitHub struct {
		Token   string `yaml:"token"`
		Timeout int    `yaml:"timeout"`
		Retries int    `yaml:"retries"`
	} `yaml:"github"`

	Analysis struct {
		MinSuccesses     int `yaml:"min_successes"`
		MaxKeyAttempts   int `yaml:"max_key_attempts"`
		BatchTimeout     int `yaml:"batch_timeout"`
		OverloadBackoff  int `yaml:"overload_backoff"`
		TransportBackoff int `yaml:"transport_backoff"`
		KeyResetMinutes  int `yaml:"key_reset_minutes"`
	} `yaml:"analysis"`

	Reporting struct {
		Formats   []string `yaml:"formats"`
		OutputDir string   `yaml:"output_dir"`
	} `yaml:"reporting"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"api"`

	Cache struct {
		Enabled  bool   `yaml:"enabled"`
		RedisURL string `yaml:"redis_url"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"cache"`

	Logging struct {
		Dir string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file and merges the Gemini
// credential list from the environment. A missing file is not an error; the
// tool can run entirely from env variables and defaults.
func LoadConfig(filename string) (Config, error) {
	var config Config

	if filename != "" && FileExists(filename) {
		file, err := os.Open(filename)
		if err != nil {
			return config, err
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return config, err
		}
	}

	// Env credentials take precedence over the config file. This is the only
	// place the process environment is consulted; everything downstream gets
	// the final slice.
	if keys := credentialsFromEnv(); len(keys) > 0 {
		config.Gemini.APIKeys = keys
	} else {
		config.Gemini.APIKeys = FilterCredentials(config.Gemini.APIKeys)
	}

	applyDefaults(&config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Gemini.Model == "" {
		config.Gemini.Model = "gemini-2.0-flash"
	}
	if config.Gemini.Temperature == 0 {
		config.Gemini.Temperature = 0.3
	}
	if config.Gemini.MaxOutputTokens == 0 {
		config.Gemini.MaxOutputTokens = 4096
	}
	if config.Gemini.RequestTimeout == 0 {
		config.Gemini.RequestTimeout = 45
	}
	if config.GitHub.Timeout == 0 {
		config.GitHub.Timeout = 15
	}
	if config.GitHub.Retries == 0 {
		config.GitHub.Retries = 2
	}
	if config.Analysis.MinSuccesses == 0 {
		config.Analysis.MinSuccesses = 5
	}
	if config.Analysis.OverloadBackoff == 0 {
		config.Analysis.OverloadBackoff = 3000
	}
	if config.Analysis.TransportBackoff == 0 {
		config.Analysis.TransportBackoff = 1500
	}
	if config.Analysis.KeyResetMinutes == 0 {
		config.Analysis.KeyResetMinutes = 60
	}
	if len(config.Reporting.Formats) == 0 {
		config.Reporting.Formats = []string{"json"}
	}
	if config.Reporting.OutputDir == "" {
		config.Reporting.OutputDir = "reports"
	}
	if config.API.Host == "" {
		config.API.Host = "127.0.0.1"
	}
	if config.API.Port == 0 {
		config.API.Port = 8080
	}
	if config.Cache.TTLHours == 0 {
		config.Cache.TTLHours = 24
	}
}

func credentialsFromEnv() []string {
	for _, name := range []string{EnvGeminiKeys, EnvGeminiKeysPrefix} {
		if raw := os.Getenv(name); raw != "" {
			if keys := FilterCredentials(strings.Split(raw, ",")); len(keys) > 0 {
				return keys
			}
		}
	}
	return nil
}

// FilterCredentials trims a credential list and drops empty entries,
// duplicates, and the placeholder values people leave in sample configs. A
// key listed twice would otherwise occupy two pool slots and be retried as
// if it were a fallback.
func FilterCredentials(raw []string) []string {
	var keys []string
	for _, key := range raw {
		key = strings.TrimSpace(key)
		if key == "" || isPlaceholderCredential(key) {
			continue
		}
		keys = append(keys, key)
	}
	if keys == nil {
		return nil
	}
	return RemoveDuplicates(keys)
}

func isPlaceholderCredential(key string) bool {
	lower := strings.ToLower(key)
	placeholders := []string{"your-api-key", "your_api_key", "changeme", "xxx", "..."}
	for _, p := range placeholders {
		if lower == p {
			return true
		}
	}
	return false
}
