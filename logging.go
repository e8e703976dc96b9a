package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter prints Info events as bare lines.
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

func setupLogging(quiet bool, verbose int) error {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.WarnLevel)
	if quiet && verbose > 0 {
		return errors.New("can't set quiet and verbose flag at the same time")
	}
	switch {
	case quiet:
		log.SetLevel(log.ErrorLevel)
	case verbose == 0:
	case verbose == 1:
		log.SetLevel(log.InfoLevel)
	case verbose == 2:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	case verbose == 3:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.TraceLevel)
	default:
		return errors.New("verbose flag can only be given up to 3 times")
	}
	return nil
}

// redirectLog moves log output off the terminal while the full screen UI
// owns it. Interactive sessions always log at least at Info level.
func redirectLog(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(defaultLogFormatter)
	if !log.IsLevelEnabled(log.InfoLevel) {
		log.SetLevel(log.InfoLevel)
	}
	return f, nil
}
