package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "claudefs-node",
	Short: "claudefs-node runs one CFS storage node",
	Long: `claudefs-node wires the write-path components (flow control, quota,
encryption, erasure coding, replication, multipath) into a single
long-running process and exposes them for operational inspection.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./claudefs-node.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("claudefs-node")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/claudefs")
	}

	viper.SetEnvPrefix("claudefs")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "claudefs-node: reading config: %v\n", err)
		}
	}
}

// loadNodeConfig merges defaultNodeConfig() with whatever viper picked up
// from a config file, environment, or flags.
func loadNodeConfig() (NodeConfig, error) {
	nc := defaultNodeConfig()
	if err := viper.Unmarshal(&nc); err != nil {
		return NodeConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return nc, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
