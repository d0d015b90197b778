package httptxn

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/httptxn/peer"
	"pkt.systems/httptxn/transport"
	"pkt.systems/httptxn/wire"
	"pkt.systems/pslog"
)

const (
	// DefaultEndpoint is the coordinator base URL used when none is configured.
	DefaultEndpoint = "https://127.0.0.1:9443/txn"
	// DefaultHTTPTimeout bounds each coordinator exchange.
	DefaultHTTPTimeout = transport.DefaultHTTPTimeout
	// DefaultMaxPayload caps a single length-prefixed field on the wire.
	DefaultMaxPayload = wire.DefaultMaxLength
	// DefaultProtocolVersion is the only wire protocol version understood.
	DefaultProtocolVersion = wire.ProtocolVersion
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
	// DefaultClientBundleName is the client PEM bundle looked up in the config dir.
	DefaultClientBundleName = "client.pem"
)

// Config describes how to reach a remote transaction coordinator.
type Config struct {
	// Endpoint is the coordinator base URL; its path prefixes every request.
	Endpoint string
	// BundlePath points at the client PEM bundle used for mutual TLS.
	BundlePath string
	// DisableMTLS talks plain HTTP(S) without a client certificate.
	DisableMTLS bool
	// TrustFiles lists extra PEM files trusted as coordinator CAs.
	TrustFiles  []string
	HTTPTimeout time.Duration
	// MaxPayload bounds every length-prefixed field the codec will accept.
	MaxPayload      int
	ProtocolVersion int
}

// Validate fills defaults and checks c for consistency.
func (c *Config) Validate() error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("config: endpoint: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("config: endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: endpoint %q has no host", c.Endpoint)
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	} else if c.HTTPTimeout < 0 {
		return errors.New("config: http timeout must be >= 0")
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	} else if c.MaxPayload < 0 {
		return errors.New("config: max payload must be >= 0")
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = DefaultProtocolVersion
	}
	if c.ProtocolVersion != wire.ProtocolVersion {
		return fmt.Errorf("config: unsupported protocol version %d", c.ProtocolVersion)
	}
	if !c.DisableMTLS {
		if u.Scheme != "https" {
			return errors.New("config: mutual TLS requires an https endpoint (or disable mTLS)")
		}
		c.BundlePath = strings.TrimSpace(c.BundlePath)
		if c.BundlePath == "" {
			path, err := DefaultClientBundlePath()
			if err != nil {
				return fmt.Errorf("config: resolve client bundle: %w", err)
			}
			c.BundlePath = path
		}
	}
	return nil
}

// NewPeer validates cfg and builds a peer bound to the configured coordinator.
func NewPeer(cfg Config, logger pslog.Logger) (*peer.Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	trust := make([][]byte, 0, len(cfg.TrustFiles))
	for _, path := range cfg.TrustFiles {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read trust file %q: %w", path, err)
		}
		trust = append(trust, data)
	}
	target, err := transport.NewHTTP(transport.HTTPConfig{
		Endpoint:    cfg.Endpoint,
		Timeout:     cfg.HTTPTimeout,
		DisableMTLS: cfg.DisableMTLS,
		BundlePath:  cfg.BundlePath,
		TrustPEM:    trust,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	codec, err := wire.New(wire.Config{Version: cfg.ProtocolVersion, MaxLength: cfg.MaxPayload})
	if err != nil {
		return nil, err
	}
	return peer.New(peer.Config{Target: target, Codec: codec, Logger: logger})
}

// DefaultConfigDir returns $HTTPTXN_CONFIG_DIR, or ~/.httptxn.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("HTTPTXN_CONFIG_DIR")); override != "" {
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".httptxn"), nil
}

// DefaultClientBundlePath returns the client bundle location inside the
// default config dir.
func DefaultClientBundlePath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultClientBundleName), nil
}
