// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds the operator-side settings read from nudge.yaml.
type Config struct {
	// Server is the updater's base URL ("http://localhost:12310").
	Server string `yaml:"server"`

	// DeployKey authenticates release management calls.
	DeployKey string `yaml:"deployKey"`
}

var config Config

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "A CLI to inspect bundles and manage BundleNudge releases",
	Long: `Nudge works with Metro JavaScript bundles and the BundleNudge update
server: inspect and hash bundles, build and apply module patches locally,
and publish or adjust releases on a running updater.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// nudge.yaml is only needed by the commands that talk to a
		// server; the local bundle commands run without it.
		yamlFile, err := os.ReadFile("nudge.yaml")
		if err != nil {
			return
		}
		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("Error parsing nudge.yaml: %v", err)
		}
	}
}
