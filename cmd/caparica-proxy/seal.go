package main

import (
	"errors"
	"fmt"

	"caparica-client/config"
	"caparica-client/internal/service"

	"github.com/choria-io/fisk"
)

type sealCommand struct {
	secret string
}

// run prints the secret sealed with client.encryption_key, ready to be stored
// in the identity hash's "secret" field.
func (c *sealCommand) run(_ *fisk.ParseContext) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Client.EncryptionKey == "" {
		return errors.New("client.encryption_key is not set")
	}

	encSvc, err := service.NewAESEncryptionService(cfg.Client.EncryptionKey)
	if err != nil {
		return err
	}

	sealed, err := encSvc.Encrypt(c.secret)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}
