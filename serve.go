package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tarefasplus/api"
	"tarefasplus/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the live task stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	if cfg.TestMode {
		return api.NewTestAuth([]byte(cfg.TestSecret)), nil
	}
	if cfg.Audience == "" || cfg.Domain == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/"), nil
}

func (a *app) serve(ctx context.Context) error {
	auth, err := newAuth(a.cfg.Auth)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.RequestLogger(a.logger))
	e.Use(api.DecompressRequests())
	api.Register(e, api.Deps{
		Store:   a.conn,
		Engine:  a.engine,
		Hub:     a.hub,
		BaseURL: a.cfg.PublicURL,
		Auth:    auth,
		Logger:  a.logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.logger.WithField("addr", a.cfg.ListenAddr()).Info("listening")
		if err := e.Start(a.cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
