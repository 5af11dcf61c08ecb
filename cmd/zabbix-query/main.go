// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
	"github.com/alexanderzobnin/grafana-zabbix/internal/config"
	"github.com/alexanderzobnin/grafana-zabbix/internal/healthcheck"
	"github.com/alexanderzobnin/grafana-zabbix/internal/httpapi"
	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
	"github.com/alexanderzobnin/grafana-zabbix/internal/querysvc"
)

const (
	flagHTTPHostPort    = "http-server.host-port"
	defaultHTTPHostPort = ":8080"
)

func main() {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	clientOpts := new(client.Options)
	v := viper.New()

	command := &cobra.Command{
		Use:   "zabbix-query",
		Short: "zabbix-query serves Zabbix metric queries over HTTP",
		Long:  `zabbix-query resolves hierarchical metric queries against the Zabbix API and serves panel-ready time series over HTTP.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := clientOpts.InitFromViper(v); err != nil {
				return err
			}
			cfg := clientOpts.Configuration

			httpClient := client.NewHTTPClient(cfg.Timeout, cfg.TLSSkipVerify)
			transport := &client.Transport{
				Client:    httpClient,
				Endpoint:  cfg.URL,
				BasicAuth: cfg.BasicAuthHeader(),
				Logger:    logger,
			}
			session := client.NewSession(transport, cfg.Username, cfg.Password, logger)
			cache := metadata.NewCache(session, cfg.CacheTTL, logger, &metadata.CacheOptions{
				Registerer: prometheus.DefaultRegisterer,
			})
			resolver := metadata.NewResolver(cache, logger)
			queryService := querysvc.NewQueryService(session, resolver, cfg, logger)

			hc := healthcheck.New(logger)
			server := httpapi.NewServer(v.GetString(flagHTTPHostPort), queryService, hc, logger)
			if err := server.Start(); err != nil {
				return err
			}

			<-signalChannel
			logger.Info("shutting down")
			return server.Close()
		},
	}

	config.AddFlags(v, command,
		client.AddFlags,
		func(flagSet *flag.FlagSet) {
			flagSet.String(flagHTTPHostPort, defaultHTTPHostPort,
				"The host:port (e.g. 127.0.0.1:8080 or :8080) of the query HTTP server.")
		},
	)

	if err := command.Execute(); err != nil {
		logger.Fatal(err.Error())
	}
}
