// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/swarmlabs/swarm/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "swarmd",
	Short:   "Swarm Server - Multi-agent chat backend",
	Long:    `Swarm Server (swarmd) exposes a WebSocket event protocol and REST API for streaming multi-agent chat sessions backed by OpenRouter.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./swarmd.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("port", 8765, "HTTP server port")

	// LLM flags
	rootCmd.PersistentFlags().String("api-key", "", "OpenRouter API key (or use SWARM_LLM_API_KEY)")
	rootCmd.PersistentFlags().String("model", "", "default model for agent responses")
	rootCmd.PersistentFlags().Float64("temperature", 0.7, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-tokens", 2000, "maximum tokens per response")

	// Database flags
	rootCmd.PersistentFlags().String("db", "", "SQLite transcript database path (empty=disabled)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))

	_ = viper.BindPFlag("llm.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
