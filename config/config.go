// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/CrawX/go-imap-mailstore/domain"

	"github.com/BurntSushi/toml"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type Config struct {
	Database string

	ImapHost           string
	User               string
	Password           string
	TLS                bool
	InsecureSkipVerify bool
	Compress           bool

	DialTimeout       Duration
	FetchTimeout      Duration
	DecodeConcurrency int

	MetricsAddr string

	Loglevel *string
}

func defaultConfig() *Config {
	return &Config{
		Database:     "mailstore.db",
		TLS:          true,
		DialTimeout:  Duration{30 * time.Second},
		FetchTimeout: Duration{2 * time.Minute},
	}
}

func ReadConfig(filename string) (*Config, error) {
	config := defaultConfig()

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ConnectConfig returns the connection settings of the configured account.
func (c *Config) ConnectConfig() domain.ConnectConfig {
	return domain.ConnectConfig{
		Address:            c.ImapHost,
		User:               c.User,
		Password:           c.Password,
		TLS:                c.TLS,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Compress:           c.Compress,
		DialTimeout:        c.DialTimeout.Duration,
	}
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite database"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.ImapHost, "ImapHost must not be empty, set to host:port of the imap server"); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.ImapHost); err != nil {
		return fmt.Errorf("ImapHost must be host:port: %w", err)
	}

	if err := validateNonEmptyStringField(c.User, "User must not be empty, set to username on the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Password, "Password must not be empty, set to password of User on the imap server"); err != nil {
		return err
	}

	if c.DialTimeout.Duration < 0 {
		return fmt.Errorf("DialTimeout must not be negative")
	}

	if c.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("FetchTimeout must be positive")
	}

	if c.DecodeConcurrency < 0 {
		return fmt.Errorf("DecodeConcurrency must not be negative, use 0 for the number of CPUs")
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
