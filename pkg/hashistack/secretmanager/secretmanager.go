package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

// Module provides a Vault client configured entirely from VAULT_* env vars.
// It is only mounted when an address is set; gateway secrets fall back to
// plain env config otherwise.
var Module = fx.Module("secretmanager",
	fx.Provide(func() (*vault.Client, error) {
		return vault.New(vault.WithEnvironment())
	}),
)
