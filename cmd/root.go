/*
 * weave - a class-file mixin engine
 *
 * Package cmd wires the command-line surface: validating mixin-config
 * resource bundles and printing the version. It does not run transforms or
 * print audit reports. Grounded on
 * bennypowers-cem's cmd/root.go cobra/viper root-command pattern.
 */
package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "A class-file mixin transformation engine",
	Long: `weave applies mixin classes to target classes at class-load time:
merging members, splicing initializers, and running callback/redirect
injections described by mixin-configuration resource bundles.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		if viper.GetBool("verbose") {
			pterm.EnableDebugMessages()
		}
	})
}
