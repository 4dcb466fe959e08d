package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avans-mx/avanbot/internal/api"
	"github.com/avans-mx/avanbot/internal/genai"
	"github.com/avans-mx/avanbot/internal/inventory"
	"github.com/avans-mx/avanbot/internal/messaging"
	"github.com/avans-mx/avanbot/internal/rag"
	"github.com/avans-mx/avanbot/internal/ratelimit"
	"github.com/avans-mx/avanbot/internal/router"
	"github.com/avans-mx/avanbot/internal/session"
	"github.com/avans-mx/avanbot/internal/util"
	"github.com/avans-mx/avanbot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for avanbot state data
	DefaultStateDir = "/var/lib/avanbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "avanbot.db"
	// DefaultMemoryDirName is the default chromem persistence directory
	DefaultMemoryDirName = "memoria"
	// DefaultSweepInterval is how often idle sessions are swept
	DefaultSweepInterval = time.Minute

	// TransportCloudAPI answers through the Meta WhatsApp Cloud API webhook.
	TransportCloudAPI = "cloudapi"
	// TransportMeow connects directly over Whatsmeow.
	TransportMeow = "meow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping avanbot", "transport", *flags.transport)
	if err := run(flags); err != nil {
		slog.Error("avanbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("avanbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseDSN    string
	WhatsAppAPIURL string
	WhatsAppToken  string
	VerifyToken    string
	OpenAIKey      string
	MemoryPath     string
	APIAddr        string
	Transport      string
	SessionTimeout time.Duration
	Cooldown       time.Duration
}

// Flags holds command line flag values
type Flags struct {
	transport   *string
	stateDir    *string
	dbDSN       *string
	apiURL      *string
	apiToken    *string
	verifyToken *string
	openaiKey   *string
	memoryPath  *string
	apiAddr     *string
	qrOutput    *string
	numeric     *bool

	sessionTimeout time.Duration
	cooldown       time.Duration
}

// initializeLogger sets up structured logging from $LOG_LEVEL and $LOG_FORMAT
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("AVANBOT_STATE_DIR"),
		DatabaseDSN:    os.Getenv("DATABASE_URL"),
		WhatsAppAPIURL: os.Getenv("WHATSAPP_API_URL"),
		WhatsAppToken:  os.Getenv("WHATSAPP_TOKEN"),
		VerifyToken:    os.Getenv("VERIFY_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		MemoryPath:     os.Getenv("AVANBOT_MEMORY_PATH"),
		APIAddr:        os.Getenv("API_ADDR"),
		Transport:      os.Getenv("AVANBOT_TRANSPORT"),
		SessionTimeout: util.ParseDurationEnv("AVANBOT_SESSION_TIMEOUT", session.DefaultTimeout),
		Cooldown:       util.ParseDurationEnv("AVANBOT_COOLDOWN", ratelimit.DefaultCooldown),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AVANBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.MemoryPath == "" {
		config.MemoryPath = filepath.Join(config.StateDir, DefaultMemoryDirName)
	}
	if config.Transport == "" {
		config.Transport = TransportCloudAPI
	}

	slog.Debug("environment variables loaded",
		"AVANBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"WHATSAPP_API_URL_SET", config.WhatsAppAPIURL != "",
		"WHATSAPP_TOKEN_SET", config.WhatsAppToken != "",
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"AVANBOT_TRANSPORT", config.Transport,
		"session_timeout", config.SessionTimeout,
		"cooldown", config.Cooldown)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		transport:   flag.String("transport", config.Transport, "messaging transport: cloudapi or meow (overrides $AVANBOT_TRANSPORT)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for avanbot data (overrides $AVANBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseDSN, "database DSN for the inventory store (overrides $DATABASE_URL)"),
		apiURL:      flag.String("whatsapp-api-url", config.WhatsAppAPIURL, "WhatsApp Cloud API messages URL (overrides $WHATSAPP_API_URL)"),
		apiToken:    flag.String("whatsapp-token", config.WhatsAppToken, "WhatsApp Cloud API bearer token (overrides $WHATSAPP_TOKEN)"),
		verifyToken: flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $VERIFY_TOKEN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		memoryPath:  flag.String("memory-path", config.MemoryPath, "chromem persistence path (overrides $AVANBOT_MEMORY_PATH)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		qrOutput:    flag.String("qr-output", "", "path to write login QR code (meow transport)"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code (meow transport)"),

		sessionTimeout: config.SessionTimeout,
		cooldown:       config.Cooldown,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"transport", *flags.transport,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiURL_set", *flags.apiURL != "",
		"verifyToken_set", *flags.verifyToken != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr)

	// Keep the SQLite default in step with an overridden state directory.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}
	if *flags.memoryPath == filepath.Join(config.StateDir, DefaultMemoryDirName) && *flags.stateDir != config.StateDir {
		*flags.memoryPath = filepath.Join(*flags.stateDir, DefaultMemoryDirName)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if inventory.DetectDSNType(*flags.dbDSN) == inventory.DSNTypeSQLite {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Inventory store
	store, err := inventory.NewStore(inventory.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer store.Close()

	// AI client (optional)
	var aiClient *genai.Client
	if *flags.openaiKey != "" {
		aiClient, err = genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		slog.Info("GenAI client configured")
	} else {
		slog.Info("No OpenAI API key, AI answers disabled")
	}

	// Vector memory (optional, needs the OpenAI key for embeddings)
	var memory *rag.Memory
	if *flags.openaiKey != "" {
		memory, err = rag.NewMemory(rag.WithPersistPath(*flags.memoryPath))
		if err != nil {
			return err
		}
		slog.Info("RAG memory configured", "path", *flags.memoryPath, "snippets", memory.Count())
	} else {
		slog.Info("No OpenAI API key, RAG memory disabled")
	}

	// Messaging transport
	service, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Stop(); err != nil {
			slog.Error("Failed to stop messaging service", "error", err)
		}
	}()

	// Sessions and rate limiting
	sessions := session.NewStore(session.WithTimeout(flags.sessionTimeout))
	guard := ratelimit.NewGuard(ratelimit.WithCooldown(flags.cooldown))

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	sessions.RunSweeper(DefaultSweepInterval, flags.sessionTimeout, sweepStop)

	routerOpts := []router.Option{
		router.WithSessions(sessions),
		router.WithGuard(guard),
		router.WithAI(aiClient),
		router.WithMemory(memory),
	}
	// The cloudapi transport can download inbound media for image analysis.
	if fetcher, ok := service.(router.MediaFetcher); ok {
		routerOpts = append(routerOpts, router.WithMedia(fetcher))
	}
	rt, err := router.NewRouter(service, store, routerOpts...)
	if err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return err
	}

	// The meow transport feeds messages through the events channel; the
	// cloudapi transport delivers them via the webhook instead.
	go func() {
		for mc := range service.Events() {
			rt.HandleMessage(ctx, mc)
		}
	}()

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	server, err := api.NewServer(rt, store, apiOpts...)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

// buildMessagingService selects and configures the transport.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.transport {
	case TransportMeow:
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewMeowService(waClient), nil

	default:
		return messaging.NewCloudAPIService(
			messaging.WithAPIURL(*flags.apiURL),
			messaging.WithToken(*flags.apiToken))
	}
}
