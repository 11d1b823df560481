package main

import (
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	logFile    string
	sectionArg string
	noColor    bool
	summary    bool
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dwarfaccel <object-file>",
	Short: "Dump DWARF accelerator tables from an object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

// Execute runs the root command; it's the package's sole entry point so
// main can stay a two-line shim the way the teacher's small command mains
// do.
func Execute() error {
	cobra.OnInitialize(initConfig, initLogger)
	if err := rootCmd.Execute(); err != nil {
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.dwarfaccel.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colorized output")
	rootCmd.Flags().StringVarP(&sectionArg, "section", "s", "auto",
		"section to dump: auto, apple-names, apple-types, apple-namespaces, apple-objc, debug-names, all")
	rootCmd.Flags().BoolVar(&summary, "summary", false, "emit a YAML summary instead of the full tree dump")

	viper.BindPFlag("section", rootCmd.Flags().Lookup("section"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
	viper.BindPFlag("summary", rootCmd.Flags().Lookup("summary"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".dwarfaccel")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("DWARFACCEL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// initLogger fans structured log records out to stderr, and additionally
// to --log-file when set, the way a service with both interactive and
// durable logging needs would wire slog-multi.
func initLogger() {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dwarfaccel: cannot open log file %s: %v\n", logFile, err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}
	logger = slog.New(slogmulti.Fanout(handlers...))
	slog.SetDefault(logger)
}
