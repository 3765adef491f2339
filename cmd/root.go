package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face-recognition attendance engine",
	Long: `Rollcall enrolls face embeddings per identity, matches query faces
against the enrolled set with quality-aware thresholding, and keeps an
append-only attendance ledger with one record per person per day.
Detection and embedding extraction run in an external detector service.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
