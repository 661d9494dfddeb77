// Package config parses the application configuration from command-line arguments
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/matchmaker/internal/logger"
	"github.com/woozymasta/matchmaker/internal/vars"
)

// Liveness modes.
const (
	LivenessNodes = "nodes"
	LivenessA2S   = "a2s"
	LivenessNone  = "none"
)

// Config represents the complete application configuration.
type Config struct {
	// betteralign:ignore

	Server      Server        `group:"Server Options" env-namespace:"MATCHMAKER"`
	Matchmaking Matchmaking   `group:"Matchmaking Options" namespace:"matchmaking" env-namespace:"MATCHMAKER_MATCHMAKING"`
	Provisioner Provisioner   `group:"Provisioner Options" namespace:"provisioner" env-namespace:"MATCHMAKER_PROVISIONER"`
	Liveness    Liveness      `group:"Liveness Options" namespace:"liveness" env-namespace:"MATCHMAKER_LIVENESS"`
	Sessions    Sessions      `group:"Session Options" namespace:"session" env-namespace:"MATCHMAKER_SESSION"`
	NATS        NATS          `group:"NATS Options" namespace:"nats" env-namespace:"MATCHMAKER_NATS"`
	Storage     Storage       `group:"Storage Options" namespace:"db" env-namespace:"MATCHMAKER_DB"`
	GeoIP       GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MATCHMAKER_GEOIP"`
	RateLimit   RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"MATCHMAKER_RATE_LIMIT"`
	Logger      logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MATCHMAKER_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin API bearer token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	Workers     int    `long:"journal-workers" env:"JOURNAL_WORKERS" description:"Connection journal writers" default:"2"`
}

// Matchmaking tunes the coordinator.
type Matchmaking struct {
	// betteralign:ignore

	EncryptionDelay  time.Duration `long:"encryption-delay" env:"ENCRYPTION_DELAY" description:"Wait after a successful join before responding, negative disables" default:"1500ms"`
	GlobalMaxPlayers int           `long:"global-max-players" env:"GLOBAL_MAX_PLAYERS" description:"Quickplay never picks a server with this many players" default:"5"`
	QuickplayHostID  string        `long:"quickplay-host-id" env:"QUICKPLAY_HOST_ID" description:"Identity that owns quickplay servers" default:"ziuMSceapEuNN7wRGQXrZg"`
	CodeLength       int           `long:"code-length" env:"CODE_LENGTH" description:"Length of generated join codes" default:"5"`
	PrivateHosting   bool          `long:"private-hosting" env:"PRIVATE_HOSTING" description:"Provision a private server for an unknown secret instead of rejecting it"`
}

// Provisioner holds the dedicated server backend client configuration.
type Provisioner struct {
	// betteralign:ignore

	URL     string        `long:"url" env:"URL" description:"Provisioning backend base URL" default:"http://127.0.0.1:8081"`
	Token   string        `long:"token" env:"TOKEN" description:"Provisioning backend bearer token"`
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Provisioning request timeout" default:"10s"`
}

// Liveness selects how dead dedicated server nodes are detected.
type Liveness struct {
	// betteralign:ignore

	Mode       string        `long:"mode" env:"MODE" description:"Liveness check" choice:"nodes" choice:"a2s" choice:"none" default:"nodes"`
	NodeTTL    time.Duration `long:"node-ttl" env:"NODE_TTL" description:"Node is dead after missing heartbeats for this long" default:"30s"`
	Timeout    time.Duration `long:"a2s-timeout" env:"A2S_TIMEOUT" description:"A2S query timeout" default:"2s"`
	BufferSize uint16        `long:"a2s-buffer-size" env:"A2S_BUFFER_SIZE" description:"A2S response buffer size" default:"1400"`
}

// Sessions holds client session table configuration.
type Sessions struct {
	// betteralign:ignore

	IdleTimeout time.Duration `long:"idle-timeout" env:"IDLE_TIMEOUT" description:"Session expires without keepalive for this long" default:"2m"`
	Capacity    int           `long:"capacity" env:"CAPACITY" description:"Max tracked sessions, 0 is unlimited" default:"0"`
}

// NATS holds event bus configuration.
type NATS struct {
	// betteralign:ignore

	URL           string        `long:"url" env:"URL" description:"NATS server URL, empty disables the bus"`
	Prefix        string        `long:"subject-prefix" env:"SUBJECT_PREFIX" description:"Subject prefix" default:"matchmaker"`
	Name          string        `long:"client-name" env:"CLIENT_NAME" description:"NATS client name" default:"matchmaker"`
	MaxReconnects int           `long:"max-reconnects" env:"MAX_RECONNECTS" description:"Reconnect attempts, -1 is unlimited" default:"-1"`
	ReconnectWait time.Duration `long:"reconnect-wait" env:"RECONNECT_WAIT" description:"Wait between reconnect attempts" default:"2s"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path           string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"matchmaker.db"`
	PruneOlderThan time.Duration `long:"prune-older-than" description:"Delete journal rows older than this and exit"`
	GenerateCount  int           `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file, empty disables country lookup" default:"matchmaker.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	Count  int           `long:"count" env:"COUNT" description:"Requests allowed per IP within the window" default:"60"`
	Window time.Duration `long:"window" env:"WINDOW" description:"Rate limit window" default:"1m"`
}

// ErrNoAuthToken is returned when the admin token is missing.
var ErrNoAuthToken = errors.New("required flag `-t, --auth-token' or environment variable `MATCHMAKER_AUTH_TOKEN' was not specified")

// Load parses args into a Config. A nil Config with a nil error means help was printed.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.AuthToken == "" {
		return ErrNoAuthToken
	}
	if c.Matchmaking.GlobalMaxPlayers < 1 {
		return fmt.Errorf("global max players must be positive, got %d", c.Matchmaking.GlobalMaxPlayers)
	}
	if c.Matchmaking.CodeLength < 1 {
		return fmt.Errorf("code length must be positive, got %d", c.Matchmaking.CodeLength)
	}
	if c.RateLimit.Count < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit must allow at least one request per positive window")
	}

	return nil
}

// Parse reads the configuration from os.Args and the environment.
// It terminates the process on invalid configuration, help, or --version.
func Parse() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		// go-flags already printed its own parse errors.
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	if cfg == nil {
		os.Exit(0)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}
