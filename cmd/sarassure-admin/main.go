// Command sarassure-admin is the trainer's command-line back office: list
// exercise content, place the target area of a step, and flush caches after
// a change.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarassure/sarassure/internal/logging"
	"github.com/sarassure/sarassure/internal/metrics"
)

var metricsFlag bool

var rootCmd = &cobra.Command{
	Use:   "sarassure-admin",
	Short: "Manage SARASSURE exercise content",
	Long: `sarassure-admin talks to the Supabase project named by SUPABASE_URL.

Examples:
  sarassure-admin steps list
  sarassure-admin steps list --exercise 3f1c...
  sarassure-admin area show <step-id>
  sarassure-admin area move <step-id> --dx 40 --dy -10 --save
  sarassure-admin area resize <step-id> --handle bottom-right --dx 20 --dy 20
  sarassure-admin area probe --pick
  sarassure-admin cache invalidate --proxy http://kiosk.local:8080`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		// Tables go to stdout; keep EMF lines out of them.
		if metricsFlag {
			metrics.SetOutput(os.Stderr)
		} else {
			metrics.SetOutput(io.Discard)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&metricsFlag, "metrics", false, "Write EMF metric lines to stderr")
	rootCmd.AddCommand(stepsCmd, areaCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
