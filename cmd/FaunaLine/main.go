package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/tsukinowa-lab/FaunaLine/internal/api"
	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/linebot"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
	"github.com/tsukinowa-lab/FaunaLine/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FaunaLine state data
	DefaultStateDir = "/var/lib/faunaline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "faunaline.db"
	// DefaultImageDirName is the directory for report images under the state dir
	DefaultImageDirName = "images"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lineOpts := buildLineOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping FaunaLine with configured modules")
	slog.Debug("Module options counts", "line", len(lineOpts), "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(lineOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("FaunaLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FaunaLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN   string
	StateDir      string
	OpenAIKey     string
	ChannelSecret string
	ChannelToken  string
	APIAddr       string
	AppBaseURL    string
	AddressPrefix string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	channelSecret *string
	channelToken  *string
	apiAddr       *string
	appBaseURL    *string
	addressPrefix *string
}

// initializeLogger sets up structured logging; DEBUG=1 raises the level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("FAUNALINE_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		ChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelToken:  os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		APIAddr:       os.Getenv("API_ADDR"),
		AppBaseURL:    os.Getenv("APP_BASE_URL"),
		AddressPrefix: os.Getenv("REPORT_ADDRESS_PREFIX"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FAUNALINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"FAUNALINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"LINE_CHANNEL_SECRET_SET", config.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN_SET", config.ChannelToken != "",
		"API_ADDR", config.APIAddr,
		"APP_BASE_URL", config.AppBaseURL,
		"REPORT_ADDRESS_PREFIX", config.AddressPrefix)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for FaunaLine data (overrides $FAUNALINE_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseDSN, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		channelSecret: flag.String("line-channel-secret", config.ChannelSecret, "LINE channel secret (overrides $LINE_CHANNEL_SECRET)"),
		channelToken:  flag.String("line-channel-token", config.ChannelToken, "LINE channel access token (overrides $LINE_CHANNEL_ACCESS_TOKEN)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		appBaseURL:    flag.String("app-base-url", config.AppBaseURL, "public base URL for edit/map links (overrides $APP_BASE_URL)"),
		addressPrefix: flag.String("address-prefix", config.AddressPrefix, "geofence address prefix for accepted locations (overrides $REPORT_ADDRESS_PREFIX)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"channelSecretSet", *flags.channelSecret != "",
		"channelTokenSet", *flags.channelToken != "",
		"apiAddr", *flags.apiAddr,
		"appBaseURL", *flags.appBaseURL,
		"addressPrefix", *flags.addressPrefix)

	// Follow the state directory when the DSN was derived from it
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return os.MkdirAll(imageDir(flags), 0755)
}

func imageDir(flags Flags) string {
	return filepath.Join(*flags.stateDir, DefaultImageDirName)
}

// buildLineOptions constructs LINE client configuration options
func buildLineOptions(flags Flags) []linebot.Option {
	var lineOpts []linebot.Option
	if *flags.channelSecret != "" {
		lineOpts = append(lineOpts, linebot.WithChannelSecret(*flags.channelSecret))
	}
	if *flags.channelToken != "" {
		lineOpts = append(lineOpts, linebot.WithChannelToken(*flags.channelToken))
	}
	lineOpts = append(lineOpts, linebot.WithImageDir(imageDir(flags)))
	if *flags.appBaseURL != "" {
		lineOpts = append(lineOpts, linebot.WithImageBaseURL(*flags.appBaseURL))
	}
	return lineOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		slog.Debug("Configuring store DSN", "dsn_type", store.DetectDSNType(*flags.dbDSN))
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.appBaseURL != "" {
		apiOpts = append(apiOpts, api.WithAppBaseURL(*flags.appBaseURL))
	}
	if *flags.addressPrefix != "" {
		apiOpts = append(apiOpts, api.WithAddressPrefix(*flags.addressPrefix))
	}
	apiOpts = append(apiOpts, api.WithImageDir(imageDir(flags)))
	apiOpts = append(apiOpts, api.WithSweepInterval(util.ParseDurationEnv("SWEEP_INTERVAL", api.DefaultSweepInterval)))
	return apiOpts
}
