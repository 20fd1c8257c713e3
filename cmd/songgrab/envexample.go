package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"songgrab/internal/core"
	"songgrab/internal/i18n"
)

type envSetting struct {
	flag    string
	comment string
	// example replaces the flag default as the suggested value.
	example string
}

type envSection struct {
	title    string
	settings []envSetting
}

func envSections() []envSection {
	return []envSection{
		{
			title: "TuneHub Resolver (Required)",
			settings: []envSetting{
				{flag: "api-key", comment: "API key sent as X-API-Key", example: "your_tunehub_api_key_here"},
				{flag: "base-url", comment: "API root"},
				{flag: "quality", comment: "Quality: " + strings.Join(core.Qualities(), ", ")},
				{flag: "resolve-timeout", comment: "Timeout of one parse call"},
			},
		},
		{
			title: "Downloads",
			settings: []envSetting{
				{flag: "download-dir", comment: "Where music, lyrics and covers are saved"},
				{flag: "download-timeout", comment: "Timeout of one asset download"},
				{flag: "max-redirects", comment: "Redirects followed before a download fails"},
				{flag: "reveal", comment: "Open the file manager for assets already on disk"},
			},
		},
		{
			title: "Search",
			settings: []envSetting{
				{flag: "search-timeout", comment: "Timeout of descriptor lookup plus search request"},
			},
		},
		{
			title: "Application",
			settings: []envSetting{
				{flag: "language", comment: "Message language: " + strings.Join(i18n.GetSupportedLanguages(), ", ")},
				{flag: "history-db", comment: "SQLite history file, empty keeps history in memory"},
			},
		},
		{
			title: "HTTP Server",
			settings: []envSetting{
				{flag: "server-host", comment: "Server bind address"},
				{flag: "server-port", comment: "Server port"},
				{flag: "flood-limit-per-minute", comment: "Max API requests per client per minute, 0 disables"},
			},
		},
		{
			title: "Logging",
			settings: []envSetting{
				{flag: "log-level", comment: "Log level: debug, info, warn, error"},
				{flag: "log-format", comment: "Log format: json, console"},
			},
		},
	}
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# songgrab Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections() {
		content.WriteString("# -----------------------------------------------------------------------------\n")
		fmt.Fprintf(&content, "# %s\n", section.title)
		content.WriteString("# -----------------------------------------------------------------------------\n")
		for _, s := range section.settings {
			def := getDefaultValueString(cmd, s.flag)
			value := def
			if s.example != "" {
				value = s.example
			}
			fmt.Fprintf(&content, "%s=%s  # %s (default: %q)\n", flagToEnvVar(s.flag), value, s.comment, def)
		}
		content.WriteString("\n")
	}

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.Root().PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}
