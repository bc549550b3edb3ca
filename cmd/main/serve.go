package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"noprime/redirector/internal/container"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator, simulated browser and HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info("Starting NoPrime redirector...")

	app, err := container.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Run(cmd.Context()); err != nil {
		return err
	}

	log.Info("NoPrime redirector stopped")
	return nil
}
