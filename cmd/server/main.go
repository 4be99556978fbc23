package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/idleforge/idlesync/pkg/api"
	authproviders "github.com/idleforge/idlesync/pkg/auth/providers"
	"github.com/idleforge/idlesync/pkg/catalog"
	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/log"
	"github.com/idleforge/idlesync/pkg/queue"
	"github.com/idleforge/idlesync/pkg/repositories"
	syncpkg "github.com/idleforge/idlesync/pkg/sync"
	"github.com/idleforge/idlesync/pkg/validator"
	"github.com/idleforge/idlesync/pkg/version"
	"github.com/idleforge/idlesync/pkg/workers"
)

func main() {
	port := flag.Int("port", 9190, "port to listen on")
	catalogPath := flag.String("catalog", "./catalog.yaml", "path to the game catalog file")
	migrationsDir := flag.String("migrations", "./migrations", "path to the SQLite migrations directory")
	interactive := flag.Bool("interactive", true, "return unresolvable conflicts as user prompts instead of errors")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting sync server version %s", version.Get())
	ctx := context.Background()

	sessionSecret := os.Getenv("IDLESYNC_SESSION_SECRET")
	if sessionSecret == "" {
		panic("IDLESYNC_SESSION_SECRET environment variable must be set")
	}
	verifier, err := authproviders.NewHMACSessionVerifier([]byte(sessionSecret))
	if err != nil {
		panic(fmt.Sprintf("Failed to create session verifier: %v", err))
	}

	keySecret := os.Getenv("IDLESYNC_KEY_SECRET")
	if keySecret == "" {
		panic("IDLESYNC_KEY_SECRET environment variable must be set")
	}
	keys, err := integrity.NewDerivedKeyProvider([]byte(keySecret))
	if err != nil {
		panic(fmt.Sprintf("Failed to create key provider: %v", err))
	}

	connStr := os.Getenv("IDLESYNC_DATABASE_URL")
	if connStr == "" {
		connStr = "sqlite://idlesync.db"
	}

	u, err := url.Parse(connStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse connection string: %v", err))
	}

	var repository repositories.Repository
	switch u.Scheme {
	case "sqlite":
		repository, err = repositories.NewSQLiteRepository(ctx, u.Host, *migrationsDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to create SQLite repository: %v", err))
		}
	case "postgresql":
		repository = repositories.NewPostgresRepository(ctx, u.String())
	default:
		panic(fmt.Sprintf("Unknown database type %s", u.Scheme))
	}
	defer repository.Close(ctx)

	gameCatalog, err := catalog.LoadFile(*catalogPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load game catalog: %v", err))
	}

	resolver := conflict.NewResolver(conflict.NewResolverOptions{
		History:         repositories.History(repository),
		RememberChoices: true,
	})

	eventQueue := queue.NewInMemoryQueue(1000)
	securityEventWorker := workers.NewSecurityEventWorker(workers.NewSecurityEventWorkerOptions{
		Repository: repository,
		EventQueue: eventQueue,
		Interval:   10 * time.Second,
	})
	go securityEventWorker.Start(ctx)

	service := syncpkg.NewService(syncpkg.NewServiceOptions{
		Resolver: resolver,
		Validator: validator.NewValidator(validator.NewValidatorOptions{
			Catalog: gameCatalog,
		}),
		Integrity:   integrity.NewService(integrity.NewServiceOptions{}),
		Repository:  repository,
		Keys:        keys,
		EventQueue:  eventQueue,
		Interactive: *interactive,
	})

	apiServerOpts := api.NewAPIServerOptions{
		Port:     *port,
		Verifier: verifier,
		Service:  service,
	}
	tlsCertFile := os.Getenv("IDLESYNC_API_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("IDLESYNC_API_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	server := api.NewAPIServer(apiServerOpts)
	go server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	if err := server.Stop(ctx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
}
