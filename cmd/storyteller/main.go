package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/storyteller/cmd/storyteller/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "storyteller",
	Short: "Edit and replay LLM conversation histories",
	Long: `storyteller is an interactive editor for LLM conversations: it lets you
inspect, rewrite and replay any message in a conversation's timeline without
ever losing a previous version of the history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

func initLogger() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

func defaultArchivePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".storyteller", "conversations.db")
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("archive", defaultArchivePath(), "Path to the conversation archive database")
	rootCmd.PersistentFlags().String("profile", "", "Path to a yaml settings profile")

	viper.SetEnvPrefix("STORYTELLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	cmds.RegisterCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
