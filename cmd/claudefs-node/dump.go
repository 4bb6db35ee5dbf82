package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective node configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		nc, err := loadNodeConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(nc)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}
