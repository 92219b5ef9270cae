// Package charmlog configures the logr sink shared by every component of
// the refresh controller. It mirrors the way cloudnative-pg's
// internal/cmd/manager wires zap into controller-runtime and klog: a
// small set of named levels, a pflag-bound Flags type, and a package-level
// logger that library code pulls from rather than constructing its own.
package charmlog

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Level names accepted by --log-level. Kept as strings (rather than an
// iota) because they round-trip through charm config and CLI flags.
const (
	ErrorLevelString   = "error"
	WarningLevelString = "warning"
	InfoLevelString    = "info"
	DebugLevelString   = "debug"
	TraceLevelString   = "trace"
	DefaultLevelString = InfoLevelString
)

// zapcore orders levels by severity: a larger level is less verbose, and
// logr's V(n) logs at zapcore.Level(-n). Info is 0.
const (
	ErrorLevel   = zapcore.ErrorLevel
	WarningLevel = zapcore.WarnLevel
	InfoLevel    = zapcore.InfoLevel
	DebugLevel   = zapcore.Level(-1)
	TraceLevel   = zapcore.Level(-2)
	DefaultLevel = InfoLevel
)

var logger logr.Logger = logr.Discard()

// SetLogger installs the logger used by every package in this module.
func SetLogger(l logr.Logger) {
	logger = l
}

// Logger returns the currently installed logger.
func Logger() logr.Logger {
	return logger
}

// Flags binds the --log-level and --log-destination flags, the way
// cloudnative-pg's manager.Flags does for its subcommands.
type Flags struct {
	zapOptions crzap.Options
	level      string
	destination string
}

// AddFlags registers the logging flags on the given flag set.
func (f *Flags) AddFlags(flags *pflag.FlagSet) {
	goFlags := &flag.FlagSet{}
	goFlags.StringVar(&f.level, "log-level", DefaultLevelString,
		"the desired log level, one of error, warning, info, debug and trace")
	goFlags.StringVar(&f.destination, "log-destination", "",
		"where the log stream will be written")
	f.zapOptions.BindFlags(goFlags)
	flags.AddGoFlagSet(goFlags)
}

// Configure builds the zap-backed logger from the bound flags and installs
// it as the package logger, also bridging klog so that any client-go
// internals log through the same sink.
func (f *Flags) Configure() {
	l := crzap.New(crzap.UseFlagOptions(&f.zapOptions), f.customLevel, f.customDestination)
	switch f.level {
	case ErrorLevelString, WarningLevelString, InfoLevelString, DebugLevelString, TraceLevelString:
	default:
		l.Info("invalid log level, defaulting", "level", f.level, "default", DefaultLevelString)
	}

	SetLogger(l)
	klog.SetLogger(l)
}

func levelFromString(s string) zapcore.Level {
	switch s {
	case ErrorLevelString:
		return ErrorLevel
	case WarningLevelString:
		return WarningLevel
	case DebugLevelString:
		return DebugLevel
	case TraceLevelString:
		return TraceLevel
	default:
		return DefaultLevel
	}
}

func stringFromLevel(l zapcore.Level) string {
	switch l {
	case ErrorLevel:
		return ErrorLevelString
	case WarningLevel:
		return WarningLevelString
	case DebugLevel:
		return DebugLevelString
	case TraceLevel:
		return TraceLevelString
	default:
		return DefaultLevelString
	}
}

func (f *Flags) customLevel(in *crzap.Options) {
	in.Level = levelFromString(f.level)
	in.EncoderConfigOptions = append(in.EncoderConfigOptions, func(c *zapcore.EncoderConfig) {
		c.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(stringFromLevel(l))
		}
	})
}

func (f *Flags) customDestination(in *crzap.Options) {
	if f.destination == "" {
		return
	}

	stream, err := os.OpenFile(f.destination, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		panic(fmt.Sprintf("cannot open log destination %v: %v", f.destination, err))
	}
	in.DestWriter = stream
}
