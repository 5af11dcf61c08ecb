// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/base64"
	"flag"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	prefix = "zabbix"

	suffixURL           = ".url"
	suffixUsername      = ".username"
	suffixPassword      = ".password"
	suffixBasicAuthUser = ".basic-auth-username"
	suffixBasicAuthPass = ".basic-auth-password"
	suffixTLSSkipVerify = ".tls.skip-verify"
	suffixTimeout       = ".timeout"
	suffixCacheTTL      = ".cache-ttl"
	suffixTrends        = ".trends"
	suffixTrendLookback = ".trends.lookback"

	defaultURL      = "http://localhost/api_jsonrpc.php"
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = "1h"
	defaultLookback = 7 * 24 * time.Hour
)

// Configuration describes one Zabbix datasource instance.
type Configuration struct {
	URL               string
	Username          string
	Password          string
	BasicAuthUsername string
	BasicAuthPassword string
	TLSSkipVerify     bool
	Timeout           time.Duration
	CacheTTL          time.Duration
	Trends            bool
	TrendLookback     time.Duration
}

// BasicAuthHeader returns the encoded basic-auth credential pair, or
// an empty string when no basic auth is configured.
func (c *Configuration) BasicAuthHeader() string {
	if c.BasicAuthUsername == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(c.BasicAuthUsername + ":" + c.BasicAuthPassword))
}

// Options stores the configuration entries for the Zabbix API client.
type Options struct {
	Configuration
}

// AddFlags adds the client flags to the CLI.
func AddFlags(flagSet *flag.FlagSet) {
	flagSet.String(prefix+suffixURL, defaultURL,
		"The full URL of the Zabbix API endpoint, e.g. http://zabbix.local/api_jsonrpc.php")
	flagSet.String(prefix+suffixUsername, "", "The Zabbix API user name.")
	flagSet.String(prefix+suffixPassword, "", "The Zabbix API password.")
	flagSet.String(prefix+suffixBasicAuthUser, "",
		"Optional user name for HTTP basic auth in front of the API.")
	flagSet.String(prefix+suffixBasicAuthPass, "",
		"Optional password for HTTP basic auth in front of the API.")
	flagSet.Bool(prefix+suffixTLSSkipVerify, false,
		"Whether to skip TLS certificate verification for the API endpoint.")
	flagSet.Duration(prefix+suffixTimeout, defaultTimeout,
		"The timeout for requests to the Zabbix API.")
	flagSet.String(prefix+suffixCacheTTL, defaultCacheTTL,
		"How long cached metadata (groups, hosts, applications, items) stays valid, e.g. 1h, 30m.")
	flagSet.Bool(prefix+suffixTrends, true,
		"Whether to fall back to trend data for ranges older than the trend lookback window.")
	flagSet.Duration(prefix+suffixTrendLookback, defaultLookback,
		"Ranges starting earlier than this window before now are served from trends instead of history.")
}

// InitFromViper initializes the options struct with values from Viper.
func (opt *Options) InitFromViper(v *viper.Viper) error {
	opt.URL = v.GetString(prefix + suffixURL)
	opt.Username = v.GetString(prefix + suffixUsername)
	opt.Password = v.GetString(prefix + suffixPassword)
	opt.BasicAuthUsername = v.GetString(prefix + suffixBasicAuthUser)
	opt.BasicAuthPassword = v.GetString(prefix + suffixBasicAuthPass)
	opt.TLSSkipVerify = v.GetBool(prefix + suffixTLSSkipVerify)
	opt.Timeout = v.GetDuration(prefix + suffixTimeout)
	opt.Trends = v.GetBool(prefix + suffixTrends)
	opt.TrendLookback = v.GetDuration(prefix + suffixTrendLookback)

	ttl, err := time.ParseDuration(v.GetString(prefix + suffixCacheTTL))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", prefix+suffixCacheTTL, err)
	}
	opt.CacheTTL = ttl
	return nil
}
