package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault returns nil without VAULT_ADDR; config then keeps the file secrets.
func ProvideVault() (*vault.Client, error) {
	if os.Getenv("VAULT_ADDR") == "" {
		zap.L().Info("[Vault] VAULT_ADDR not set, secret overlay disabled")
		return nil, nil
	}

	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
