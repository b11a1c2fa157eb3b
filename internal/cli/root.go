// Package cli is the terminal client: cobra commands that drive one
// session orchestrator from stdin.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Roulette/internal/config"
)

var (
	flagServer    string
	flagClientID  string
	flagThreshold float64
	flagNoFilter  bool
)

var rootCmd = &cobra.Command{
	Use:   "roulette",
	Short: "Random one-to-one chat from the terminal",
	Long: `roulette pairs you with a random stranger for a text and audio chat.

Examples:
  roulette start
  roulette start --server https://roulette.example.com
  roulette rooms`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "server base url")
	pf.StringVar(&flagClientID, "client-id", "", "client id (random when empty)")

	startCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "toxic score above which inbound messages are hidden")
	startCmd.Flags().BoolVar(&flagNoFilter, "no-filter", false, "show inbound messages unscreened")

	rootCmd.AddCommand(startCmd, roomsCmd)
}

// loadConfig applies the flags the user actually set over file and env.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	overrides := map[string]any{}
	if cmd.Flags().Changed("server") {
		overrides["server_url"] = flagServer
	}
	if cmd.Flags().Changed("client-id") {
		overrides["client_id"] = flagClientID
	}
	if cmd.Flags().Changed("threshold") {
		overrides["toxicity.threshold"] = flagThreshold
	}
	if flagNoFilter {
		overrides["toxicity.url"] = ""
	}
	cfg, err := config.LoadClient(overrides)
	if err != nil {
		return nil, err
	}
	config.SetupLogging(cfg.LogLevel)
	return cfg, nil
}

func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(ErrorStyle.Render("error: "+err.Error()) + "\n")
		os.Exit(1)
	}
}
