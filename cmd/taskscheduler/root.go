// A thin cobra+viper demonstration harness over a SchedulerManager.
package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	backend  string
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "taskscheduler",
	Short: "Run and inspect a task scheduler",
	Long:  `taskscheduler boots a SchedulerManager against an in-memory, SQLite, or Qdrant storage backend.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ./scheduler.yml)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend override: memory, sqlite, qdrant")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path override (default stderr)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scheduler")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("TASKSCHEDULER")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(".", "scheduler.yml")
}
