package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "ghost",
	Short: "Product video pipeline: score, plan, review and track leads",
	Long: `ghost scores trending products, plans pain-point videos for the best of
them, runs every generated video through a compliance gate before a human
approves it, and turns engagement on published videos into qualified leads.

Run "ghost start" to launch the daemon; the other commands talk to it over
the local REST API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(".env")
	},
}

// loadDotEnv exports the variables in path unless they are already set. A
// missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(engagementCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
