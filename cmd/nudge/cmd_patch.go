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

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
	"github.com/bundlenudge/bundlenudge/pkg/patch"
)

var (
	diffCmd = &cobra.Command{
		Use:   "diff [old-bundle] [new-bundle]",
		Short: "Builds a module patch transforming one bundle into another",
		Args:  cobra.ExactArgs(2),
		Run:   runDiffCommand,
	}
	diffOut     string
	diffPreview bool

	applyCmd = &cobra.Command{
		Use:   "apply [bundle-file] [patch-file]",
		Short: "Applies a patch and verifies the result against a target hash",
		Long: `Applies a module patch to a bundle, assembles the result, and compares
its digest to --target-hash. The output is only written when the digest
matches, the same guarantee a device gets before loading a patched bundle.`,
		Args: cobra.ExactArgs(2),
		Run:  runApplyCommand,
	}
	applyTargetHash string
	applyOut        string
)

func init() {
	diffCmd.Flags().StringVarP(&diffOut, "out", "o", "patch.json", "output patch file")
	diffCmd.Flags().BoolVar(&diffPreview, "preview", false, "print a line diff of the bundle texts")
	rootCmd.AddCommand(diffCmd)

	applyCmd.Flags().StringVar(&applyTargetHash, "target-hash", "", "expected digest of the patched bundle (required)")
	applyCmd.Flags().StringVarP(&applyOut, "out", "o", "", "output bundle file (default stdout)")
	_ = applyCmd.MarkFlagRequired("target-hash")
	rootCmd.AddCommand(applyCmd)
}

func runDiffCommand(cmd *cobra.Command, args []string) {
	oldText, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading old bundle: %v", err)
	}
	newText, err := os.ReadFile(args[1])
	if err != nil {
		log.Fatalf("Error reading new bundle: %v", err)
	}

	oldBundle, err := bundle.Parse(string(oldText))
	if err != nil {
		log.Fatalf("Error parsing old bundle: %v", err)
	}
	newBundle, err := bundle.Parse(string(newText))
	if err != nil {
		log.Fatalf("Error parsing new bundle: %v", err)
	}

	p := patch.Diff(oldBundle, newBundle)
	data, err := p.Marshal()
	if err != nil {
		log.Fatalf("Error encoding patch: %v", err)
	}
	if err := os.WriteFile(diffOut, data, 0644); err != nil {
		log.Fatalf("Error writing patch file: %v", err)
	}
	fmt.Printf("wrote %s: %d operations, %d bytes (new bundle is %d bytes)\n",
		diffOut, len(p.Operations), len(data), len(newText))
	fmt.Printf("target hash: %s\n", bundle.Hash(string(newText)))

	if diffPreview {
		preview, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(oldText)),
			B:        difflib.SplitLines(string(newText)),
			FromFile: args[0],
			ToFile:   args[1],
			Context:  2,
		})
		if err != nil {
			log.Fatalf("Error building diff preview: %v", err)
		}
		fmt.Print(preview)
	}
}

func runApplyCommand(cmd *cobra.Command, args []string) {
	baseText, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading bundle: %v", err)
	}
	patchJSON, err := os.ReadFile(args[1])
	if err != nil {
		log.Fatalf("Error reading patch file: %v", err)
	}
	p, err := patch.Unmarshal(patchJSON)
	if err != nil {
		log.Fatalf("Error decoding patch: %v", err)
	}

	result, err := patch.ApplyVerified(string(baseText), p, applyTargetHash)
	if err != nil {
		log.Fatalf("Patch application failed: %v", err)
	}

	if applyOut == "" {
		fmt.Print(result)
		return
	}
	if err := os.WriteFile(applyOut, []byte(result), 0644); err != nil {
		log.Fatalf("Error writing output bundle: %v", err)
	}
	fmt.Printf("wrote %s: %d bytes, verified against %s\n", applyOut, len(result), applyTargetHash)
}
