package config

import (
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Empty values leave the environment
// value in place.
type Flags struct {
	EnvFile    string
	Endpoint   string
	Topic      string
	Target     string
	Subject    string
	StatusAddr string
	LogLevel   string
	Timeout    string
}

// ParseFlags parses args (without the program name) into Flags.
func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&f.EnvFile, "env-file", "", "path to a .env file (comma-separated list allowed)")
	fs.StringVar(&f.Endpoint, "endpoint", "", "Tuya message queue websocket endpoint")
	fs.StringVar(&f.Topic, "topic", "", "message queue environment: prod or test")
	fs.StringVar(&f.Target, "target", "", "forward target URL (http(s):// or nats://)")
	fs.StringVar(&f.Subject, "subject", "", "NATS subject for nats:// targets")
	fs.StringVar(&f.StatusAddr, "status-addr", "", "listen address of the status server")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.Timeout, "timeout", "", "forward timeout (e.g. 1s)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// Apply overlays non-empty flag values on c.
func (f Flags) Apply(c Config) Config {
	if f.Endpoint != "" {
		c.Endpoint = f.Endpoint
	}
	if f.Topic != "" {
		c.Topic = f.Topic
	}
	if f.Target != "" {
		c.ForwardURL = f.Target
	}
	if f.Subject != "" {
		c.ForwardSubject = f.Subject
	}
	if f.StatusAddr != "" {
		c.StatusAddr = f.StatusAddr
	}
	if f.LogLevel != "" {
		c.Log = f.LogLevel
	}
	if f.Timeout != "" {
		c.ForwardTimeout = parseDuration(f.Timeout, c.ForwardTimeout)
	}
	return c
}
