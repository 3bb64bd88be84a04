// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file, a .env
// file and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the front-end server's listening address (ip:port).
	Port string `json:"address"`

	// BackendURL is the base URL of the banking REST backend. Every backend
	// call goes through a client built from this value.
	BackendURL string `json:"backend_url"`

	// DatabaseDSN holds the connection string of the server-side timer store.
	// Empty means timers are kept in memory.
	DatabaseDSN string `json:"database_dsn"`

	// CAFile is an optional CA bundle used to verify the backend.
	CAFile string `json:"ca_file"`
	// CertFile and KeyFile enable mutual TLS towards the backend when both are set.
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// TLSCert and TLSKey make the front-end server listen on HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// StateFile is the shell's durable local storage file.
	StateFile string `json:"state_file"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.BackendURL, "b", "http://localhost:9090", "banking backend base URL")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.CAFile, "ca", "", "path to backend CA cert")
	flag.StringVar(&options.CertFile, "cert", "", "path to client cert for backend mTLS")
	flag.StringVar(&options.KeyFile, "key", "", "path to client key for backend mTLS")
	flag.StringVar(&options.TLSCert, "tls-cert", "", "server TLS certificate")
	flag.StringVar(&options.TLSKey, "tls-key", "", "server TLS key")
	flag.StringVar(&options.StateFile, "state", "onboarding.json", "path to local state file")
	flag.StringVar(&options.LogLevel, "l", "info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
//
// Precedence, lowest first: flag defaults and values, config file, environment.
func Parse() *Options {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if err := loadFile(options.Config, options); err != nil {
			log.Fatalf("error while reading config file: %v", err)
		}
	}

	applyEnv(options)

	return options
}

// loadFile merges the JSON config at path into opts. A missing file is not an error.
func loadFile(path string, opts *Options) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, opts)
}

func applyEnv(opts *Options) {
	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		opts.Port = serverAddress
	}
	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		opts.BackendURL = backendURL
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		opts.DatabaseDSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		opts.LogLevel = level
	}
}
