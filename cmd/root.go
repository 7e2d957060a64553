package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logMode string

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance kiosk and reports",
	Long: `Face Attendance records daily presence by matching a camera capture against
enrolled identities. It serves the kiosk and admin API, closes each day with an
absence sweep and exports monthly and daily attendance as CSV.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: dev or prod (overrides LOG_MODE)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
