package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Inline provider keys never reach stdout.
			redacted := *cfg
			redacted.Tools = make(map[string]config.ToolConfig, len(cfg.Tools))
			for name, tc := range cfg.Tools {
				if tc.APIKey != "" {
					tc.APIKey = "[redacted]"
				}
				redacted.Tools[name] = tc
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
		},
	}
}

func newMobileKeyCmd() *cobra.Command {
	var generate, show bool
	cmd := &cobra.Command{
		Use:   "mobile-key",
		Short: "Manage the WebSocket mobile API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case generate:
				buf := make([]byte, 32)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				key := core.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
				fmt.Fprintln(cmd.OutOrStdout(), key)
				fmt.Fprintln(cmd.ErrOrStderr(), "export MOBILE_API_KEY with this value to enable the WebSocket auth gate")
				return nil
			case show:
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.MobileAPIKey == "" {
					return fmt.Errorf("MOBILE_API_KEY is not set")
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.MobileAPIKey)
				return nil
			default:
				return fmt.Errorf("one of --generate or --show is required")
			}
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a new key")
	cmd.Flags().BoolVar(&show, "show", false, "print the configured key")
	cmd.MarkFlagsMutuallyExclusive("generate", "show")
	return cmd
}
