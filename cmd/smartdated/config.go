package main

import (
	"github.com/spf13/cobra"

	"github.com/cyp0633/smartdate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults and environment overrides have been
applied. Output is TOML when --config names a .toml file, YAML otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		shown := *cfg
		if shown.BasicAuth != nil {
			masked := *shown.BasicAuth
			masked.Password = "********"
			shown.BasicAuth = &masked
		}
		if len(shown.Viewers) > 0 {
			shown.Viewers = make([]config.BasicAuthConfig, len(cfg.Viewers))
			for i, v := range cfg.Viewers {
				v.Password = "********"
				shown.Viewers[i] = v
			}
		}

		data, err := config.Marshal(cfgFile, &shown)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
