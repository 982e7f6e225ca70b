package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/core/auth"
	"github.com/solatis/claimscrub/internal/core/config"
)

var (
	apiKeyTenant   string
	apiKeyName     string
	apiKeySecretID string
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage scrub API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key for a tenant",
	Long: `Create signs a new key with an HMAC secret from CS_HMAC_SECRET[_N] and
stores only its hash. The key is printed once and cannot be recovered.`,
	Args: cobra.NoArgs,
	RunE: runAPIKeyCreate,
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.RevokeAPIKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	apiKeyCreateCmd.Flags().StringVar(&apiKeyTenant, "tenant", "", "tenant the key authenticates as")
	apiKeyCreateCmd.Flags().StringVar(&apiKeyName, "name", "", "key description")
	apiKeyCreateCmd.Flags().StringVar(&apiKeySecretID, "secret-id", "", "HMAC secret id to sign with (required when several are configured)")
	_ = apiKeyCreateCmd.MarkFlagRequired("tenant")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, err := pickSecret(secrets, apiKeySecretID)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	key, hash, err := auth.GenerateAPIKey(secretID, secrets[secretID])
	if err != nil {
		return err
	}
	id, err := a.store.CreateAPIKey(ctx, apiKeyTenant, apiKeyName, hash)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", id, key)
	return nil
}

// pickSecret returns want when configured, or the only configured secret.
func pickSecret(secrets map[string][]byte, want string) (string, error) {
	if want != "" {
		if _, ok := secrets[want]; !ok {
			return "", fmt.Errorf("secret id %s not configured", want)
		}
		return want, nil
	}
	switch len(secrets) {
	case 0:
		return "", fmt.Errorf("no HMAC secrets configured (set CS_HMAC_SECRET environment variable)")
	case 1:
		for id := range secrets {
			return id, nil
		}
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", fmt.Errorf("several HMAC secrets configured, choose one with --secret-id (%v)", ids)
}
