package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"noprime/redirector/internal/container"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [url...]",
	Short: "Fetch product pages and print where each one redirects",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringP("file", "f", "", "Read addresses from a file, one per line")
	inspectCmd.Flags().IntP("workers", "w", 0, "Concurrent fetches (default fetcher.max_workers)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	workers, _ := cmd.Flags().GetInt("workers")

	urls := args
	if file != "" {
		fromFile, err := readURLs(file)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	urls = lo.Uniq(urls)
	if len(urls) == 0 {
		return fmt.Errorf("no addresses to inspect")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Fetcher.MaxWorkers = workers
	}

	app, err := container.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Inspector.InspectAll(cmd.Context(), urls)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// readURLs returns the non-blank lines of path that are not # comments.
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return urls, nil
}
