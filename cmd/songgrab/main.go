// Package main provides the songgrab CLI application entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"songgrab/internal/core"
	"songgrab/internal/i18n"
)

const envPrefix = "SONGGRAB"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "songgrab",
	Short: "songgrab - resolve, search and download songs",
	Long: `songgrab resolves song links and ids from NetEase Cloud Music, QQ Music and Kuwo
through a TuneHub resolver, searches their catalogs and keeps local copies of the
music, lyrics and cover of every song in step.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Message language (%s)", supportedLangs))

	flags.String("api-key", "", "TuneHub API key")
	flags.String("base-url", defaults.TuneHub.BaseURL, "TuneHub API base url")
	flags.String("quality", defaults.TuneHub.Quality,
		fmt.Sprintf("Requested quality (%s)", strings.Join(core.Qualities(), ", ")))
	flags.Duration("resolve-timeout", defaults.TuneHub.ResolveTimeout, "Timeout of one parse call")

	flags.String("download-dir", defaults.Download.Dir, "Directory assets are saved to")
	flags.Duration("download-timeout", defaults.Download.Timeout, "Timeout of one asset download")
	flags.Int("max-redirects", defaults.Download.MaxRedirects, "Maximum redirects followed by a download")
	flags.Duration("search-timeout", defaults.Search.Timeout, "Timeout of one search")

	flags.String("history-db", defaultHistoryDB(), "SQLite file the history is kept in (empty keeps it in memory)")
	flags.Bool("reveal", false, "Open the file manager when an asset is already downloaded")

	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Int("flood-limit-per-minute", defaults.App.FloodLimitPerMinute, "Maximum API requests per client per minute (0 disables)")

	rootCmd.Flags().Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("generate-env-example", rootCmd.Flags().Lookup("generate-env-example")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newParseCmd(), newSearchCmd(), newAssetsCmd(), newHistoryCmd(), newServeCmd())
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureTuneHub(cfg)
	configureDownload(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureTuneHub(cfg *core.Config) {
	cfg.TuneHub.APIKey = strings.TrimSpace(viper.GetString("api-key"))
	if v := viper.GetString("base-url"); v != "" {
		cfg.TuneHub.BaseURL = v
	}
	if v := viper.GetString("quality"); v != "" {
		cfg.TuneHub.Quality = v
	}
	if v := viper.GetDuration("resolve-timeout"); v > 0 {
		cfg.TuneHub.ResolveTimeout = v
	}
	if v := viper.GetDuration("search-timeout"); v > 0 {
		cfg.Search.Timeout = v
	}
}

func configureDownload(cfg *core.Config) {
	if v := viper.GetString("download-dir"); v != "" {
		cfg.Download.Dir = expandHome(v)
	}
	if v := viper.GetDuration("download-timeout"); v > 0 {
		cfg.Download.Timeout = v
	}
	if viper.IsSet("max-redirects") {
		cfg.Download.MaxRedirects = viper.GetInt("max-redirects")
	}
}

func configureServer(cfg *core.Config) {
	if v := viper.GetString("server-host"); v != "" {
		cfg.Server.Host = v
	}
	if v := viper.GetInt("server-port"); v > 0 {
		cfg.Server.Port = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
}

func configureApp(cfg *core.Config) {
	cfg.App.HistoryDB = expandHome(viper.GetString("history-db"))

	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	if viper.IsSet("flood-limit-per-minute") {
		cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
	}
	if cfg.App.FloodLimitPerMinute < 0 {
		cfg.App.FloodLimitPerMinute = 0
	}
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if f := strings.ToLower(format); f == "console" || f == "text" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func defaultHistoryDB() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "songgrab", "history.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func runRoot(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}
	return cmd.Help()
}
