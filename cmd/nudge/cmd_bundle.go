// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
)

var parseCmd = &cobra.Command{
	Use:   "parse [bundle-file]",
	Short: "Parses a bundle and prints its module table",
	Args:  cobra.ExactArgs(1),
	Run:   runParseCommand,
}

var hashCmd = &cobra.Command{
	Use:   "hash [bundle-file]",
	Short: "Prints a bundle's content digest",
	Args:  cobra.ExactArgs(1),
	Run:   runHashCommand,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(hashCmd)
}

func runParseCommand(cmd *cobra.Command, args []string) {
	source, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading bundle file: %v", err)
	}
	b, err := bundle.Parse(string(source))
	if err != nil {
		log.Fatalf("Error parsing bundle: %v", err)
	}

	fmt.Printf("modules: %d\n", b.Len())
	fmt.Printf("prelude: %d bytes\n", len(b.Prelude))
	fmt.Printf("postlude: %d bytes\n", len(b.Postlude))

	ids := b.ModuleIDs()
	slices.Sort(ids)
	for _, id := range ids {
		mod := b.Module(id)
		fmt.Printf("  module %d: %d bytes, deps %v\n", id, len(mod.Code), mod.Dependencies)
	}
}

func runHashCommand(cmd *cobra.Command, args []string) {
	source, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading bundle file: %v", err)
	}
	fmt.Println(bundle.Hash(string(source)))
}
