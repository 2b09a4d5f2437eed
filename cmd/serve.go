package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the advisor over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :5002)")
	serveCmd.Flags().Int("rate-limit", 0, "chat requests per minute per client ip, 0 disables the limit")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("server.rate-limit", serveCmd.Flags().Lookup("rate-limit"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := setupLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the job-advisor",
		zap.String("version", version),
		zap.String("auth_mode", config.Auth.Mode),
		zap.String("upstream_provider", config.Upstream.Provider),
	)

	session, _, err := buildSession(config, logger)
	if err != nil {
		logger.Fatal("preparing the advisor", zap.Error(err))
	}

	server := httpserver.New(session, httpserver.Options{
		AllowedOrigins: config.Server.AllowedOrigins,
		RateLimit:      config.Server.RateLimit,
	}, logger.Named("http"))

	if err := server.ListenAndServe(ctx, config.Listen); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}

	logger.Info("stopped")
}
