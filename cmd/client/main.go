// Package main is the GophBank terminal client: an onboarding shell for
// applicants and a review shell for bank staff.
package main

import (
	"cmp"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/atinyakov/GophBank/internal/backend"
	"github.com/atinyakov/GophBank/internal/client/storage"
	"github.com/atinyakov/GophBank/internal/config"
	"github.com/atinyakov/GophBank/internal/logger"
)

var (
	version   string
	buildDate string
)

// main parses command-line flags and dispatches to the onboarding or admin shell.
func main() {
	var (
		cmd     string
		token   string
		showVer bool
	)

	flag.StringVar(&cmd, "cmd", "shell", "command: shell | admin")
	flag.StringVar(&token, "token", os.Getenv("BACKEND_TOKEN"), "bearer token for the backend")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	options := config.Parse()

	if showVer {
		fmt.Printf("GophBank Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	zl := logger.New()
	if err := zl.Init(options.LogLevel); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Log.Sync() }()

	httpClient, err := backend.NewHTTPClient(options.CAFile, options.CertFile, options.KeyFile)
	if err != nil {
		log.Fatal(err)
	}
	client := backend.New(options.BackendURL, httpClient, zl.Log)
	if token != "" {
		client = client.WithToken(token)
	}

	switch cmd {
	case "shell":
		ls, err := openStorage(options)
		if err != nil {
			log.Fatal(err)
		}
		newShell(client, ls, zl.Log, os.Stdin, os.Stdout).run()
	case "admin":
		if token == "" {
			log.Fatal("admin shell requires -token or BACKEND_TOKEN")
		}
		newAdminShell(client, zl.Log, os.Stdin, os.Stdout).run()
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}

// openStorage opens the encrypted state file. The key is derived from the
// backend client key when one is configured, else from a key file kept next
// to the state.
func openStorage(options *config.Options) (*storage.LocalStorage, error) {
	var material []byte
	var err error
	if options.KeyFile != "" {
		material, err = os.ReadFile(options.KeyFile)
	} else {
		material, err = storage.LoadOrCreateKey(options.StateFile + ".key")
	}
	if err != nil {
		return nil, fmt.Errorf("load state key: %w", err)
	}
	aead, err := storage.NewAEAD(material)
	if err != nil {
		return nil, err
	}
	ls, err := storage.Open(options.StateFile, storage.WithCipher(aead))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", options.StateFile, err)
	}
	return ls, nil
}
