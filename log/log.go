package log

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
}

// Options control the process-wide logger.
type Options struct {
	Debug      bool
	Level      string
	Path       string
	MaxSize    int
	MaxAge     int
	MaxBackups int
}

// Logger returns the current logger.
func Logger() *zap.Logger {
	return logger
}

// AddFlags registers the log flags shared by every command.
func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.Bool("debug", false, "use the development console encoder and debug level")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// ApplyFlags overrides opts with the log flags the user set explicitly.
func ApplyFlags(flagSet *pflag.FlagSet, opts *Options) {
	if flagSet.Changed("debug") {
		opts.Debug, _ = flagSet.GetBool("debug")
	}
	if flagSet.Changed("log-path") {
		opts.Path, _ = flagSet.GetString("log-path")
	}
	if flagSet.Changed("log-max-size") {
		opts.MaxSize, _ = flagSet.GetInt("log-max-size")
	}
	if flagSet.Changed("log-max-age") {
		opts.MaxAge, _ = flagSet.GetInt("log-max-age")
	}
	if flagSet.Changed("log-max-backups") {
		opts.MaxBackups, _ = flagSet.GetInt("log-max-backups")
	}
}

// SetLogger replaces the process-wide logger. Records go to stdout and, when a path is set,
// to a rotating file.
func SetLogger(opts Options) error {
	var (
		encoder zapcore.Encoder
		level   = zapcore.InfoLevel
	)
	timeEncoder := zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return errors.Wrapf(err, "log level %q", opts.Level)
		}
		level = parsed
	}
	if opts.Debug {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = timeEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
		level = zapcore.DebugLevel
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = timeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
		}))
	}
	core := zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level)
	logger = zap.New(core)
	return nil
}
