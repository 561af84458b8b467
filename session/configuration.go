// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultFetchIdleTimeout = 2 * time.Minute

type ConfigFunc func(c *configuration) error

// DecodeConcurrency bounds the number of messages decoded at the same time, the default is GOMAXPROCS.
func DecodeConcurrency(concurrency int) ConfigFunc {
	return func(c *configuration) error {
		if concurrency < 1 {
			return fmt.Errorf("DecodeConcurrency must be at least 1")
		}

		c.DecodeConcurrency = concurrency
		return nil
	}
}

// FetchIdleTimeout fails a fetch when the server stays silent for longer than timeout.
func FetchIdleTimeout(timeout time.Duration) ConfigFunc {
	return func(c *configuration) error {
		if timeout <= 0 {
			return fmt.Errorf("FetchIdleTimeout must be positive")
		}

		c.FetchIdleTimeout = timeout
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ConfigFunc {
	return func(c *configuration) error {
		if logger == nil {
			return fmt.Errorf("Logger cannot be null")
		}

		c.Logger = logger
		return nil
	}
}

type configuration struct {
	DecodeConcurrency int
	FetchIdleTimeout  time.Duration

	Logger *logrus.Logger
}
