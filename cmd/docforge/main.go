// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// docforge generates documents from natural-language intent by running
// sandboxed per-format templates.
//
// Usage:
//
//	docforge serve
//	docforge generate [flags] <intent...>
//	docforge list-templates
//	docforge show-template <format>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docforge-foundation/docforge/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Set up logging.
	logLevel := slog.LevelInfo
	if os.Getenv("DOCFORGE_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = serveCmd(args, logger)
	case "generate":
		err = generateCmd(args, logger)
	case "list-templates":
		err = listTemplatesCmd(args)
	case "show-template":
		err = showTemplateCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("docforge %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`docforge - Generate documents from natural-language intent

USAGE
    docforge <command> [flags] [args...]

COMMANDS
    serve          Run the generation service
    generate       Generate one document locally
    list-templates List the loaded templates
    show-template  Show a template's body
    version        Show version

EXAMPLES
    # Run the service (store URL and token from the environment)
    DOCFORGE_STORE_URL=https://store.example DOCFORGE_STORE_TOKEN=... docforge serve

    # Generate a spreadsheet into the current directory, no upload
    docforge generate --format=spreadsheet --output=report.xlsx "quarterly totals by region"

    # Inspect the markdown template
    docforge show-template markdown

ENVIRONMENT
    DOCFORGE_STORE_URL    Content store endpoint
    DOCFORGE_STORE_TOKEN  Content store bearer token
    DOCFORGE_PORT         Intake listener port (default: 8000)
    DOCFORGE_ENV          development or production (default: development)
    DOCFORGE_CONFIG       Optional YAML file for less-often-tuned settings
    DOCFORGE_DEBUG        Enable debug logging
`)
}
