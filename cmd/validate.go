package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"weave/config"
)

func init() {
	validateCmd.Flags().String("format", "text", "Output format: text or json")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [mixins.json...]",
	Short: "Validate mixin-configuration resource bundles",
	Long:  `Parse one or more *.mixins.json resource bundles and report malformed or incomplete configs.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		fs := afero.NewOsFs()

		failures := 0
		loader := config.NewLoader()
		for _, path := range args {
			raw, err := afero.ReadFile(fs, path)
			if err != nil {
				reportFailure(format, path, err)
				failures++
				continue
			}
			cfg, err := loader.Load(filepath.Base(path), raw)
			if err != nil {
				reportFailure(format, path, err)
				failures++
				continue
			}
			reportSuccess(format, path, config.QualifiedMixinClasses(cfg))
		}

		if failures > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func reportSuccess(format, path string, classes []string) {
	if format == "json" {
		fmt.Printf(`{"path":%q,"valid":true,"mixins":%d}`+"\n", path, len(classes))
		return
	}
	pterm.Success.Printf("%s: %d mixin class(es)\n", path, len(classes))
}

func reportFailure(format, path string, err error) {
	if format == "json" {
		fmt.Printf(`{"path":%q,"valid":false,"error":%q}`+"\n", path, err.Error())
		return
	}
	pterm.Error.Printf("%s: %v\n", path, err)
}
