package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

func init() {
	// load .env file if it exists
	_ = godotenv.Load()
}

// Config is read from the config file, then environment variables
// prefixed with QUERYCACHE_, then command line flags.
type Config struct {
	// Base URL of the API to query.
	BaseURL string `yaml:"baseUrl" envconfig:"BASE_URL"`
	Port    int    `yaml:"port" envconfig:"PORT"`
	// Serve the API from the built-in demo origin instead of BaseURL.
	Demo        bool          `yaml:"demo" envconfig:"DEMO"`
	DemoDB      string        `yaml:"demoDb" envconfig:"DEMO_DB"`
	DemoLatency time.Duration `yaml:"demoLatency" envconfig:"DEMO_LATENCY"`

	MaxAge            time.Duration `yaml:"maxAge" envconfig:"MAX_AGE"`
	UpdateInterval    time.Duration `yaml:"updateInterval" envconfig:"UPDATE_INTERVAL"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout" envconfig:"FETCH_TIMEOUT"`
	Retry             int           `yaml:"retry" envconfig:"RETRY"`
	RetryDelay        time.Duration `yaml:"retryDelay" envconfig:"RETRY_DELAY"`
	AbandonUnobserved bool          `yaml:"abandonUnobserved" envconfig:"ABANDON_UNOBSERVED"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:      "https://jsonplaceholder.typicode.com",
		Port:         8080,
		FetchTimeout: 10 * time.Second,
		RetryDelay:   500 * time.Millisecond,
	}
}

// getConfig returns the defaults overlaid with the given file, if any,
// and the environment.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}
	err := envconfig.Process("QUERYCACHE", &config)
	return config, err
}
