package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	// The effective configuration is printed even when it does not validate.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return loadConfig(cmd, false) },
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		var (
			out []byte
			err error
		)
		if asJSON {
			out, err = json.MarshalIndent(globalConfig, "", "  ")
			out = append(out, '\n')
		} else {
			out, err = globalConfig.ToYAML()
		}
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print JSON instead of YAML")
	configCmd.AddCommand(configShowCmd)
}
