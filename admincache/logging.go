package admincache

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/config"
	logruslog "github.com/unkn0wn-root/editcache/log/logrus"
	sloglog "github.com/unkn0wn-root/editcache/log/slog"
	zaplog "github.com/unkn0wn-root/editcache/log/zap"
)

// NewLogger builds the configured log backend writing JSON to w. The returned
// slog.Logger is non-nil only for the slog backend.
func NewLogger(cfg config.Config, w io.Writer) (editcache.Logger, *slog.Logger, error) {
	switch cfg.LogBackend {
	case "", config.LogSlog:
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
		return sloglog.New(l), l, nil

	case config.LogZap:
		lvl, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(w),
			lvl,
		)
		return zaplog.New(zap.New(core)), nil, nil

	case config.LogLogrus:
		lvl, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(lvl)
		return logruslog.New(l), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.LogBackend)
	}
}
