package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL        string
	projectID        int
	attachmentTypeID int
	authMode         string
	username         string
	password         string
	inputPath        string
	uploadProtocol   string
	debugMode        bool
	consoleReport    bool
)

var rootCmd = &cobra.Command{
	Use:   "attachment-replacer [input.xlsx]",
	Short: "Replace embedded image attachments on requirement items",
	Long: `Reads a list of global IDs from a spreadsheet, downloads each item's
embedded image attachment, re-uploads it under a sequenced name, rewrites the
description to point at the new attachment, and writes an HTML report.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			inputPath = args[0]
		}
		if inputPath == "" {
			log.Fatal("Input spreadsheet required: pass a path or use --input")
		}

		// Credentials may live in a .env file next to the working directory.
		godotenv.Load()

		if debugMode {
			SetDebugMode(true)
		}

		if err := ensureConfigExists(); err != nil {
			log.Fatalf("Failed to prepare config: %v", err)
		}
		settings, err := loadSettings(getConfigPath("settings.yaml"))
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		applyFlagOverrides(settings)

		if username == "" {
			username = os.Getenv("JAMA_USERNAME")
		}
		if password == "" {
			password = os.Getenv("JAMA_PASSWORD")
		}

		if settings.Server.URL == "" {
			log.Fatal("Server URL required: use --url or settings.yaml")
		}
		if settings.Server.Project <= 0 {
			log.Fatal("Project ID required: use --project or settings.yaml")
		}

		client, err := NewClient(settings.Server.URL, settings.Server.Auth, username, password,
			WithPageSize(settings.Server.PageSize))
		if err != nil {
			log.Fatalf("Failed to create client: %v", err)
		}

		ctx := context.Background()
		if err := client.Login(ctx); err != nil {
			log.Fatalf("Login failed: %v", err)
		}

		log.Printf("Starting attachment update sequence...")
		records, err := NewPipeline(client, settings).Run(ctx, inputPath)
		if err != nil {
			log.Fatalf("Update sequence failed: %v", err)
		}
		if len(records) == 0 {
			return
		}

		reportPath, err := writeReport(records)
		if err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		if absPath, err := filepath.Abs(reportPath); err == nil {
			reportPath = absPath
		}
		log.Printf("Operation completed. Created report: %s", reportPath)

		if consoleReport {
			fmt.Println(renderConsoleReport(records))
		}
	},
}

// applyFlagOverrides layers command-line flags over the settings file.
func applyFlagOverrides(settings *Settings) {
	if serverURL != "" {
		settings.Server.URL = serverURL
	}
	if projectID > 0 {
		settings.Server.Project = projectID
	}
	if attachmentTypeID > 0 {
		settings.Server.AttachmentType = attachmentTypeID
	}
	if authMode != "" {
		settings.Server.Auth = authMode
	}
	if uploadProtocol != "" {
		settings.Server.UploadProtocol = uploadProtocol
	}
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", "", "Server base URL")
	rootCmd.Flags().IntVar(&projectID, "project", 0, "Project API ID")
	rootCmd.Flags().IntVar(&attachmentTypeID, "attachment-type", 0, "Attachment item type ID (typically 22)")
	rootCmd.Flags().StringVar(&authMode, "auth", "", "Authentication mode: basic or oauth")
	rootCmd.Flags().StringVar(&username, "username", "", "Username or OAuth client ID (env JAMA_USERNAME)")
	rootCmd.Flags().StringVar(&password, "password", "", "Password or OAuth client secret (env JAMA_PASSWORD)")
	rootCmd.Flags().StringVar(&inputPath, "input", "", "Spreadsheet listing the global IDs to update")
	rootCmd.Flags().StringVar(&uploadProtocol, "upload-protocol", "", "Upload protocol: multipart or two-step")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&consoleReport, "console", false, "Also print the report table to stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
