package xlog

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var _logger *atomic.Value = new(atomic.Value)

// stderr
// stdout
// file:///path/log (created if missing)
// tcp://127.0.0.1:12345
// udp://127.0.0.1:12345
// unix:///path/syslog.socket
type LogConfig struct {
	Level   string `json:"level"`   // default debug
	Fd      string `json:"fd"`      // default stderr
	Console bool   `json:"console"` // human readable console format instead of json lines

	// internal
	level zerolog.Level
	fw    io.Writer
}

func init() {
	l := &LogConfig{}
	if err := l.parse(); err != nil {
		panic(err)
	}

	if err := initDefaultLogger(l); err != nil {
		panic(err)
	}
}

// return default logger
func Logger() *zerolog.Logger {
	return _logger.Load().(*zerolog.Logger)
}

// Parse validates l and installs it as the default logger.
func (l *LogConfig) Parse() error {
	if err := l.parse(); err != nil {
		return err
	}
	return initDefaultLogger(l)
}

func (l *LogConfig) parse() error {

	if l.Level == "" {
		l.Level = "debug"
	}

	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %v", l.Level, err)
	}
	l.level = level

	switch l.Fd {
	case "", "stderr":
		l.fw = os.Stderr
	case "stdout":
		l.fw = os.Stdout
	default:
		u, err := url.Parse(l.Fd)
		if err != nil {
			return fmt.Errorf("invalid Log File Path: %s, error: %v", l.Fd, err)
		}
		switch u.Scheme {
		case "tcp", "udp", "unix":
			addr := u.Host
			if u.Scheme == "unix" {
				addr = u.Path
			}
			c, err := net.Dial(u.Scheme, addr)
			if err != nil {
				return fmt.Errorf("invalid Log File Path: %s, error: %v", l.Fd, err)
			}
			l.fw = c
		case "file":
			fw, err := os.OpenFile(u.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("invalid Log Path: %s, error: %v", l.Fd, err)
			}
			l.fw = fw
		default:
			return fmt.Errorf("invalid Log File Path: %s, error: log protocol not implement", l.Fd)
		}
	}

	return nil
}

func (l *LogConfig) new() *zerolog.Logger {
	fw := l.fw
	if l.Console {
		fw = zerolog.ConsoleWriter{Out: fw}
	}
	logger := zerolog.New(fw).With().Timestamp().Stack().Logger().Level(l.level)
	return &logger
}

// NewLogger builds a standalone logger without touching the default one.
func NewLogger(l *LogConfig) (*zerolog.Logger, error) {
	if err := l.parse(); err != nil {
		return nil, err
	}
	return l.new(), nil
}

func initDefaultLogger(l *LogConfig) error {
	_logger.Store(l.new())
	return nil
}
