package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/cdshooks/internal/config"
	"github.com/ehr/cdshooks/internal/domain/cds"
	"github.com/ehr/cdshooks/internal/platform/auth"
	"github.com/ehr/cdshooks/internal/platform/fhir"
	"github.com/ehr/cdshooks/internal/platform/middleware"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cds-server",
		Short: "CDS Hooks decision support service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(discoveryCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CDS Hooks server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func discoveryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discovery",
		Short: "Print the discovery document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), discoveryDocument{Services: cds.Catalog()})
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print JSON Schemas for the request and response bodies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), wireSchemas())
		},
	}
}

type discoveryDocument struct {
	Services []fhir.CDSService `json:"services"`
}

// wireSchemas reflects the CDS Hooks wire types, keyed by body name.
func wireSchemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return map[string]*jsonschema.Schema{
		"discovery":    r.Reflect(&discoveryDocument{}),
		"hookRequest":  r.Reflect(&fhir.CDSHookRequest{}),
		"hookResponse": r.Reflect(&fhir.CDSHookResponse{}),
		"feedback":     r.Reflect(&fhir.CDSFeedbackBatch{}),
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	logger = logger.Level(cfg.Level())

	if !cfg.RequireAuth {
		logger.Warn().Msg("REQUIRE_AUTH is off, calls without credentials are accepted")
	}

	e, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := cfg.Addr()
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the middleware chain and the CDS Hooks routes.
func newServer(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(auth.Gate(auth.GateConfig{
		RequireAuth: cfg.RequireAuth,
		Verifier:    auth.AcceptAllVerifier{},
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	// CDS Hooks
	hooks := fhir.NewCDSHooksHandler(logger)
	svc := cds.NewService(cds.Source{
		Label:   cfg.SourceLabel,
		DocsURL: cfg.DocsURL,
	}, logger)
	if err := cds.NewHandler(svc).RegisterServices(hooks); err != nil {
		return nil, fmt.Errorf("register cds services: %w", err)
	}
	hooks.RegisterRoutes(e)

	return e, nil
}
