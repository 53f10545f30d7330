package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"

	"caparica-client/config"
	"caparica-client/internal/adapter/http/transport"
	"caparica-client/internal/app"
	"caparica-client/pkg/logger"

	"github.com/choria-io/fisk"
)

type signCommand struct {
	url    string
	method string
}

// run prints the headers as curl -H arguments.
func (c *signCommand) run(_ *fisk.ParseContext) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithWriter(cfg.Log.Level, os.Stderr)

	signing, err := app.NewSigning(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer signing.Close()

	req, err := http.NewRequest(c.method, c.url, nil)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	if _, err := signing.Signer.Process(context.Background(), transport.NewRequest(req)); err != nil {
		return err
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("-H '%s: %s'\n", name, req.Header.Get(name))
	}
	return nil
}
