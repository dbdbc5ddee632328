// Package main is the entry point for the photolink service.
package main

import (
	"os"

	"github.com/jotterhq/photolink/cmd/photolink/app"
	"github.com/jotterhq/photolink/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
