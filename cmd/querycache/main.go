package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	querycache "github.com/always-cache/querycache"
	"github.com/always-cache/querycache/cache"
	origin "github.com/always-cache/querycache/pkg/demo-origin"
	"github.com/always-cache/querycache/pkg/metrics"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	baseURLFlag        string
	portFlag           int
	demoFlag           bool
	maxAgeFlag         time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "YAML config file")
	flag.StringVar(&baseURLFlag, "base-url", "", "Base URL of the API to query")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (default 8080)")
	flag.BoolVar(&demoFlag, "demo", false, "Query the built-in demo origin")
	flag.DurationVar(&maxAgeFlag, "max-age", 0, "Max age of cached data (0: until invalidated)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	applyFlags(&config)

	if config.Demo {
		baseURL, closeOrigin := startDemoOrigin(config)
		defer closeOrigin()
		config.BaseURL = baseURL
	}

	prom := metrics.NewPrometheus("querycache")
	client := querycache.CreateClient(querycache.Config{
		Cache: cache.New(cache.Config{
			Logger:            &log.Logger,
			Metrics:           prom,
			FetchTimeout:      config.FetchTimeout,
			AbandonUnobserved: config.AbandonUnobserved,
		}),
		Logger:         &log.Logger,
		MaxAge:         config.MaxAge,
		UpdateInterval: config.UpdateInterval,
		Retry:          config.Retry,
		RetryDelay:     config.RetryDelay,
	})
	defer client.Close()

	s := &server{
		client:  client,
		fetcher: fetcher.New(fetcher.Config{BaseURL: config.BaseURL, Timeout: config.FetchTimeout, Logger: &log.Logger}),
		metrics: prom,
		log:     log.Logger,
	}

	log.Info().Msgf("Serving queries for %s on port %v", config.BaseURL, config.Port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), s.routes())
	if err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(config *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			config.BaseURL = baseURLFlag
		case "port":
			config.Port = portFlag
		case "demo":
			config.Demo = demoFlag
		case "max-age":
			config.MaxAge = maxAgeFlag
		}
	})
}

func startDemoOrigin(config Config) (string, func()) {
	store, err := origin.NewStore(config.DemoDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open demo store")
	}
	if err := store.Seed(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Could not seed demo store")
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not listen for demo origin")
	}
	demo := &http.Server{Handler: origin.NewServer(origin.Config{
		Store:   store,
		Logger:  &log.Logger,
		Latency: config.DemoLatency,
	}).Router()}
	go func() {
		if err := demo.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Demo origin stopped")
		}
	}()
	url := "http://" + listener.Addr().String()
	log.Info().Str("url", url).Msg("Started demo origin")
	return url, func() {
		demo.Close()
		store.Close()
	}
}
