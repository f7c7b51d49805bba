// Package logger provides a convience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a Sugared Logger that writes to stdout and
// provides human readable timestamps.
func New(service string, outputPaths ...string) (*zap.SugaredLogger, error) {
	config := newConfig(service, outputPaths...)

	log, err := config.Build(zap.WithCaller(true))
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

// NewWithRotation constructs a Sugared Logger that writes to stdout and to
// a log file that is rolled once it grows past thresholdKB. The returned
// closer flushes and closes the log file.
func NewWithRotation(service string, logFile string, thresholdKB int64, maxRolls int) (*zap.SugaredLogger, io.Closer, error) {
	if dir, _ := filepath.Split(logFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, err
		}
	}

	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return nil, nil, err
	}

	config := newConfig(service)

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		zapcore.AddSync(r),
		config.Level,
	)

	tee := zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})

	log, err := config.Build(zap.WithCaller(true), tee)
	if err != nil {
		r.Close()
		return nil, nil, err
	}

	return log.Sugar(), r, nil
}

func newConfig(service string, outputPaths ...string) zap.Config {
	config := zap.NewProductionConfig()

	config.OutputPaths = []string{"stdout"}
	config.OutputPaths = append(config.OutputPaths, outputPaths...)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	return config
}
