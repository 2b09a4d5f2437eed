package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a fresh credential and report how long it stays valid",
	Run: func(_ *cobra.Command, _ []string) {
		login()
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func login() {
	ctx := context.Background()

	logger, err := setupLogger()
	if err != nil {
		log.Fatal(err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	creds, err := newCredentialProvider(config, logger)
	if err != nil {
		logger.Fatal("building credential provider", zap.Error(err))
	}

	cred, err := creds.Obtain(ctx, true)
	if err != nil {
		logger.Fatal("obtaining credential", zap.Error(err))
	}

	if cred.ExpiresOn.IsZero() {
		fmt.Printf("%s credential ready, it does not expire\n", cred.Kind)
		return
	}

	ttl := cred.TTL(time.Now()).Round(time.Second)
	fmt.Printf("%s credential ready, valid for %s (until %s)\n", cred.Kind, ttl, cred.ExpiresOn.Local().Format(time.RFC1123))
}
