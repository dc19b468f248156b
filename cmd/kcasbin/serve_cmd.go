package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkayan/kcasbin"
	"github.com/getkayan/kcasbin/api"
	"github.com/getkayan/kcasbin/logger"
	"github.com/getkayan/kcasbin/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the policy API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.model(); err != nil {
				return err
			}

			tp, err := telemetry.NewProvider(telemetry.Config{
				ServiceName:    "kcasbin",
				ServiceVersion: version,
				OTLPEndpoint:   a.cfg.OTLPEndpoint,
				SamplingRate:   1.0,
				Enabled:        a.cfg.TelemetryEnabled,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer tp.Shutdown(context.Background())

			ad, err := a.adapter(kcasbin.WithTelemetry(tp))
			if err != nil {
				return err
			}
			defer ad.Close()

			e := newServer(ad, a.model)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Log.Info("Server is starting", zap.Int("port", a.cfg.Port))
				errCh <- e.Start(fmt.Sprintf(":%d", a.cfg.Port))
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Log.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

// newServer wires the policy API and /metrics into an echo instance.
func newServer(ad api.PolicyAdapter, newModel api.ModelFactory) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				logger.Log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Log.Debug("request", fields...)
			return nil
		},
	}))

	api.NewHandler(ad, newModel).RegisterRoutes(e.Group(""))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
