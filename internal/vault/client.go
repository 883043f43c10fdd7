// Package vault overlays gateway secrets from HashiCorp Vault onto the
// static configuration when enabled.
package vault

import (
	"context"
	"fmt"

	"expense-tracker-gateway/config"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client. Returns nil when Vault is disabled.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// ApplySecrets reads the gateway secret bundle from the KV v2 mount and
// overlays non-empty values onto cfg. Recognized keys: admin_secret,
// gemini_api_key, openai_api_key, storage_access_key, storage_secret_key.
func (c *Client) ApplySecrets(ctx context.Context, cfg *config.Config) error {
	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("no secrets found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected secret format at %s", path)
	}

	overlay := func(dst *string, key string) {
		if v, ok := data[key].(string); ok && v != "" {
			*dst = v
		}
	}

	overlay(&cfg.AdminConfig.Secret, "admin_secret")
	overlay(&cfg.AIConfig.GeminiAPIKey, "gemini_api_key")
	overlay(&cfg.AIConfig.OpenAIAPIKey, "openai_api_key")
	overlay(&cfg.StorageConfig.AccessKey, "storage_access_key")
	overlay(&cfg.StorageConfig.SecretKey, "storage_secret_key")

	log.Info().Str("path", path).Msg("vault secrets applied")
	return nil
}
