// SPDX-License-Identifier: GPL-3.0-or-later
package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, getLevel(tc.level), tc.level)
	}
}

func TestLogger(t *testing.T) {
	InitLogging("warn")
	defer InitLogging("info")

	l := Logger(LOG_SESSION)
	assert.Equal(t, logrus.WarnLevel, l.Level)

	SetLogLevel("debug")
	assert.Equal(t, logrus.DebugLevel, Logger(LOG_IMAP).Level)

	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	l.WithField("folder", "INBOX").Info("Opened folder")
	assert.Regexp(t, `^SE:\t.*Opened folder.*folder=INBOX`, buf.String())

	assert.Panics(t, func() { Logger("XX") })
}
