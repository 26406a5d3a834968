// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
	"github.com/bundlenudge/bundlenudge/services/updater/middleware"
)

var (
	releasesCmd = &cobra.Command{
		Use:   "releases",
		Short: "Manages releases on a running updater (needs nudge.yaml)",
	}

	releasesApp string

	releasesListCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists an app's releases, newest first",
		Run:   runReleasesListCommand,
	}

	publishVersion string
	publishBundle  string
	publishRollout int

	releasesPublishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Publishes a new release from a bundle file",
		Run:   runReleasesPublishCommand,
	}

	rolloutRelease string
	rolloutPercent int

	releasesRolloutCmd = &cobra.Command{
		Use:   "rollout",
		Short: "Adjusts a release's rollout percentage",
		Run:   runReleasesRolloutCommand,
	}

	statusRelease string
	statusValue   string

	releasesStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Activates or deactivates a release (inactive rolls it back)",
		Run:   runReleasesStatusCommand,
	}
)

func init() {
	releasesCmd.PersistentFlags().StringVar(&releasesApp, "app", "", "app id (required)")
	_ = releasesCmd.MarkPersistentFlagRequired("app")

	releasesPublishCmd.Flags().StringVar(&publishVersion, "version", "", "release semver (required)")
	releasesPublishCmd.Flags().StringVar(&publishBundle, "bundle", "", "bundle file (required)")
	releasesPublishCmd.Flags().IntVar(&publishRollout, "rollout", 100, "initial rollout percentage")
	_ = releasesPublishCmd.MarkFlagRequired("version")
	_ = releasesPublishCmd.MarkFlagRequired("bundle")

	releasesRolloutCmd.Flags().StringVar(&rolloutRelease, "release", "", "release id (required)")
	releasesRolloutCmd.Flags().IntVar(&rolloutPercent, "percent", 0, "new rollout percentage")
	_ = releasesRolloutCmd.MarkFlagRequired("release")

	releasesStatusCmd.Flags().StringVar(&statusRelease, "release", "", "release id (required)")
	releasesStatusCmd.Flags().StringVar(&statusValue, "set", "", "active or inactive (required)")
	_ = releasesStatusCmd.MarkFlagRequired("release")
	_ = releasesStatusCmd.MarkFlagRequired("set")

	releasesCmd.AddCommand(releasesListCmd)
	releasesCmd.AddCommand(releasesPublishCmd)
	releasesCmd.AddCommand(releasesRolloutCmd)
	releasesCmd.AddCommand(releasesStatusCmd)
	rootCmd.AddCommand(releasesCmd)
}

var apiClient = &http.Client{Timeout: 2 * time.Minute}

// callAPI sends a management request and decodes the response into out.
func callAPI(method, path string, body, out any) error {
	if config.Server == "" {
		return fmt.Errorf("no server configured; set 'server' in nudge.yaml")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.Server+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DeployKeyHeader, config.DeployKey)

	resp, err := apiClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func runReleasesListCommand(cmd *cobra.Command, args []string) {
	var resp datatypes.ListReleasesResponse
	if err := callAPI(http.MethodGet, "/v1/apps/"+releasesApp+"/releases", nil, &resp); err != nil {
		log.Fatalf("Error listing releases: %v", err)
	}
	if len(resp.Releases) == 0 {
		fmt.Println("no releases")
		return
	}
	for _, r := range resp.Releases {
		patched := ""
		if r.PatchFromVersion != "" {
			patched = fmt.Sprintf(", patch from %s", r.PatchFromVersion)
		}
		fmt.Printf("%s  %-10s %-8s rollout %3d%%%s\n",
			r.ID, r.Version, r.Status, r.RolloutPercentage, patched)
	}
}

func runReleasesPublishCommand(cmd *cobra.Command, args []string) {
	bundleText, err := os.ReadFile(publishBundle)
	if err != nil {
		log.Fatalf("Error reading bundle file: %v", err)
	}

	var resp datatypes.CreateReleaseResponse
	err = callAPI(http.MethodPost, "/v1/apps/"+releasesApp+"/releases",
		datatypes.CreateReleaseRequest{
			Version:           publishVersion,
			RolloutPercentage: publishRollout,
			Bundle:            string(bundleText),
		}, &resp)
	if err != nil {
		log.Fatalf("Error publishing release: %v", err)
	}

	fmt.Printf("published %s version %s at %d%% rollout\n",
		resp.Release.ID, resp.Release.Version, resp.Release.RolloutPercentage)
	if resp.PatchBuilt {
		fmt.Printf("patch built from %s (%d operations)\n",
			resp.Release.PatchFromVersion, resp.PatchOperations)
	} else {
		fmt.Println("no patch built; devices will download the full bundle")
	}
}

func runReleasesRolloutCommand(cmd *cobra.Command, args []string) {
	var release datatypes.Release
	err := callAPI(http.MethodPatch,
		"/v1/apps/"+releasesApp+"/releases/"+rolloutRelease+"/rollout",
		datatypes.UpdateRolloutRequest{RolloutPercentage: rolloutPercent}, &release)
	if err != nil {
		log.Fatalf("Error updating rollout: %v", err)
	}
	fmt.Printf("release %s now at %d%% rollout\n", release.ID, release.RolloutPercentage)
}

func runReleasesStatusCommand(cmd *cobra.Command, args []string) {
	var release datatypes.Release
	err := callAPI(http.MethodPost,
		"/v1/apps/"+releasesApp+"/releases/"+statusRelease+"/status",
		datatypes.UpdateStatusRequest{Status: statusValue}, &release)
	if err != nil {
		log.Fatalf("Error updating status: %v", err)
	}
	fmt.Printf("release %s is now %s\n", release.ID, release.Status)
}
