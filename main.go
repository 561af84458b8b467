// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/CrawX/go-imap-mailstore/config"
	"github.com/CrawX/go-imap-mailstore/imapconnection"
	"github.com/CrawX/go-imap-mailstore/log"
	"github.com/CrawX/go-imap-mailstore/mail"
	"github.com/CrawX/go-imap-mailstore/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	log.InitLogging("info")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "go-imap-mailstore",
		Short:        "Read, flag, move and delete mails on an imap server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.toml", "path of the toml config file")

	root.AddCommand(
		cmdFolders(),
		cmdStatus(),
		cmdHeaders(),
		cmdMessages(),
		cmdInbox(),
		cmdFlags(),
		cmdDelete(),
		cmdMove(),
	)

	return root
}

type sessionFunc func(ctx context.Context, conf *config.Config, s *session.Session) error

// withSession connects with the configured account, runs f and closes the session again. Closing expunges
// messages deleted by f.
func withSession(f sessionFunc) error {
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig(configFile)
	if err != nil {
		logger.WithField("error", err).Error("Could not load config")
		return err
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	if len(conf.MetricsAddr) > 0 {
		serveMetrics(conf.MetricsAddr, logger)
	}

	configs := []session.ConfigFunc{session.FetchIdleTimeout(conf.FetchTimeout.Duration)}
	concurrency := conf.DecodeConcurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
	}
	configs = append(configs, session.DecodeConcurrency(concurrency))

	s, err := session.NewSession(imapconnection.NewDialer(), mail.Decoder{}, configs...)
	if err != nil {
		logger.WithField("error", err).Error("Could not create session")
		return err
	}

	err = s.Connect(conf.ConnectConfig())
	if err != nil {
		logger.WithField("error", err).Error("Could not connect")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := f(ctx, conf, s)
	if runErr != nil {
		logger.WithField("error", runErr).Error("Command failed")
	}

	err = s.CloseSession()
	if err != nil {
		logger.WithField("error", err).Warn("Could not close session")
	}

	return runErr
}

func serveMetrics(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		err := http.ListenAndServe(addr, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err).Error("Metrics endpoint failed")
		}
	}()
}
