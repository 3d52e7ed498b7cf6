package agent

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapo-exporter/pkg/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "configuration OK: %d devices, %d credentials, interval %s, listen %s\n",
			len(cfg.Devices), len(cfg.Credentials), cfg.Monitor.Interval, cfg.Server.Addr)
		for _, d := range cfg.Devices {
			fmt.Fprintf(out, "  %s (credential %q)\n", d.Identity(), d.Credential)
		}
		return nil
	},
}
