package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/mintviewer/internal/config"
	"github.com/core-coin/mintviewer/internal/dispatcher"
	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/http_api"
	"github.com/core-coin/mintviewer/internal/metrics"
	"github.com/core-coin/mintviewer/internal/mintviewer"
	"github.com/core-coin/mintviewer/internal/notificator"
	"github.com/core-coin/mintviewer/internal/registry"
	"github.com/core-coin/mintviewer/internal/repository"
	"github.com/core-coin/mintviewer/internal/stream"
	"github.com/core-coin/mintviewer/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "mintviewer",
		Usage: "MintViewer forwards newly minted Telegram gifts to subscribed chats",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "Database driver (sqlite or postgres)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "stream-url", Aliases: []string{"s"}, Usage: "Upstream Socket.IO endpoint"},
			&cli.StringSliceFlag{Name: "channel", Aliases: []string{"c"}, Usage: "Required channel (repeatable)"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("stream-url") {
		cfg.StreamURL = c.String("stream-url")
	}
	if c.IsSet("channel") {
		cfg.RequiredChannels = c.StringSlice("channel")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	var db *repository.DB
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err = repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	default:
		db, err = repository.NewSQLiteDB(cfg.SQLitePath, log)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	catalog := gifts.NewLoader(log, cfg.GiftCatalogURL).Load(ctx)
	subscriptions := registry.New(db, catalog, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// Initialize notificator
	telegram, err := notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, subscriptions, notificator.Options{
		Channels:   cfg.RequiredChannels,
		PriceStars: cfg.SubscriptionPriceStars,
		SendRate:   cfg.SendRatePerSecond,
	})
	if err != nil {
		db.Close()
		return err
	}

	dispatch := dispatcher.NewDispatcher(subscriptions, telegram, telegram, collector, log, dispatcher.Options{
		Groups:      cfg.RequiredChannels,
		Concurrency: cfg.DispatchConcurrency,
		SendTimeout: cfg.SendTimeout,
	})

	client, err := stream.NewClient(stream.Options{
		URL:             cfg.StreamURL,
		BaseDelay:       cfg.ReconnectBaseDelay,
		MaxDelay:        cfg.ReconnectMaxDelay,
		DispatchTimeout: cfg.DispatchTimeout,
	}, dispatch, collector, log)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create stream client: %v", err)
	}

	mintViewerApp := mintviewer.NewMintViewer(subscriptions, db, client, telegram, log)

	apiServer := http_api.NewHTTPServer(mintViewerApp, reg, cfg.APIPort, log)
	go apiServer.Start()
	defer func() {
		if err := apiServer.Shutdown(); err != nil {
			log.Errorw("Failed to shut down HTTP server", "error", err)
		}
	}()

	// Start the application
	return mintViewerApp.Run(ctx)
}
