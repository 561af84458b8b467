// SPDX-License-Identifier: GPL-3.0-or-later
package log

import (
	"fmt"
	"io/ioutil"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers map[string]*logrus.Logger
)

func NewPrefixLogger(prefix string) *PrefixLogger {
	stringPrefix := fmt.Sprintf("%s:\t", prefix)

	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = "15:04:05"
	formatter.DisableColors = strings.Contains(runtime.GOOS, "windows")
	return &PrefixLogger{
		formatter,
		[]byte(stringPrefix),
	}
}

type PrefixLogger struct {
	formatter logrus.Formatter
	prefix    []byte
}

func (f *PrefixLogger) Format(entry *logrus.Entry) ([]byte, error) {
	text, err := f.formatter.Format(entry)
	if err != nil {
		return nil, err
	}
	line := make([]byte, 0, len(f.prefix)+len(text))
	line = append(line, f.prefix...)
	return append(line, text...), nil
}

const (
	LOG_MAIN        = "MA"
	LOG_SESSION     = "SE"
	LOG_PERSISTENCE = "PE"
	LOG_IMAP        = "IM"
)

func getLevel(loglevel string) logrus.Level {
	switch strings.ToLower(loglevel) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "panic":
		return logrus.PanicLevel
	case "fatal":
		return logrus.FatalLevel
	}

	// Info is default
	return logrus.InfoLevel
}

func initLogger(prefix, loglevel string) {
	loggers[prefix] = logrus.New()
	loggers[prefix].Level = getLevel(loglevel)
	loggers[prefix].Formatter = NewPrefixLogger(prefix)
}

func InitLogging(loglevel string) {
	mu.Lock()
	defer mu.Unlock()
	initLoggers(loglevel)
}

func initLoggers(loglevel string) {
	loggers = make(map[string]*logrus.Logger)
	for _, prefix := range []string{
		LOG_MAIN,
		LOG_SESSION,
		LOG_PERSISTENCE,
		LOG_IMAP,
	} {
		initLogger(prefix, loglevel)
	}

}

func SetLogLevel(loglevel string) {
	mu.Lock()
	defer mu.Unlock()
	for _, v := range loggers {
		v.Level = getLevel(loglevel)
	}
}

// Logger returns the logger for a component. Before InitLogging every component logs at info level.
func Logger(logger string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if loggers == nil {
		initLoggers("info")
	}

	l, ok := loggers[logger]
	if !ok {
		panic("Logger " + logger + " unknown")
	}

	return l
}

// Discard returns a logger that drops everything, handy for tests and library users without logging.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return l
}
