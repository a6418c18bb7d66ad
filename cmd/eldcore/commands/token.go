package commands

import (
	"fmt"
	"os"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/fleetyard/eldcore/pkg/api"
	"github.com/fleetyard/eldcore/pkg/api/auth"
	"github.com/fleetyard/eldcore/pkg/config"
	"github.com/spf13/cobra"
)

var (
	tokenAccount string
	tokenCarrier string
	tokenDevice  string
	tokenRole    string
	tokenOutput  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a JWT token pair",
	Long: `Mint a JWT access/refresh token pair signed with the configured secret.

Device tokens are installed on ELD gateways during provisioning; operator
and admin tokens are issued to back-office users. Every token is scoped
to one carrier.

Examples:
  # Mint a driver token for a provisioned device
  eldcore token --account 0b26... --carrier 77f1... --device d-4418... --role driver

  # Mint an operator token for back-office review surfaces
  eldcore token --account 9ac2... --carrier 77f1... --role operator

  # Mint an admin token and print it as JSON
  eldcore token --account 9ac2... --carrier 77f1... --role admin -o json`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenAccount, "account", "", "Account ID the token authenticates (required)")
	tokenCmd.Flags().StringVar(&tokenCarrier, "carrier", "", "Carrier ID the token is scoped to (required)")
	tokenCmd.Flags().StringVar(&tokenDevice, "device", "", "Device ID for driver tokens")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleDriver, "Token role (driver|operator|admin)")
	tokenCmd.Flags().StringVarP(&tokenOutput, "output", "o", "table", "Output format (table|json)")
	_ = tokenCmd.MarkFlagRequired("account")
	_ = tokenCmd.MarkFlagRequired("carrier")
}

func runToken(cmd *cobra.Command, args []string) error {
	switch tokenRole {
	case auth.RoleDriver, auth.RoleOperator, auth.RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q (valid: driver, operator, admin)", tokenRole)
	}
	if tokenRole == auth.RoleDriver && tokenDevice == "" {
		return fmt.Errorf("driver tokens require --device: event submission is pinned to the provisioned unit")
	}

	format, err := output.ParseFormat(tokenOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if !cfg.API.HasJWTSecret() {
		return fmt.Errorf("no JWT secret configured: run 'eldcore init' or set %s", api.EnvAPISecret)
	}

	jwtSvc, err := auth.NewJWTService(cfg.API.AuthConfig())
	if err != nil {
		return err
	}

	pair, err := jwtSvc.GenerateTokenPair(auth.Identity{
		AccountID: tokenAccount,
		CarrierID: tokenCarrier,
		DeviceID:  tokenDevice,
		Role:      tokenRole,
	})
	if err != nil {
		return fmt.Errorf("failed to generate token pair: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, pair)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Role", tokenRole},
			{"Access token", pair.AccessToken},
			{"Refresh token", pair.RefreshToken},
			{"Expires in", fmt.Sprintf("%ds", pair.ExpiresIn)},
		})
	}
}
