package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddress     = "wss://api.globalvolu.me/ws"
	DefaultDialTimeout = 10 * time.Second
	DefaultReadLimit   = 1024

	userAgent = "volsync"
)

// TLSConfig adjusts trust for wss endpoints. The zero value uses system roots.
type TLSConfig struct {
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

func (c TLSConfig) enabled() bool {
	return strings.TrimSpace(c.CAFile) != "" || strings.TrimSpace(c.ServerName) != "" || c.InsecureSkipVerify
}

// Config selects the relay endpoint and connection limits.
type Config struct {
	Address     string
	DialTimeout time.Duration
	ReadLimit   int64
	TLS         TLSConfig
}

func DefaultConfig() Config {
	return Config{
		Address:     DefaultAddress,
		DialTimeout: DefaultDialTimeout,
		ReadLimit:   DefaultReadLimit,
	}
}

func (c Config) WithDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	return c
}

// Dialer opens websocket connections to one relay endpoint.
type Dialer struct {
	cfg    Config
	client *http.Client
}

// NewDialer prepares TLS trust up front. The endpoint itself is validated on
// every Dial so that a bad address surfaces as a classified transport error.
func NewDialer(cfg Config) (*Dialer, error) {
	cfg = cfg.WithDefaults()
	d := &Dialer{cfg: cfg}
	if cfg.TLS.enabled() {
		tlsCfg, err := clientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		d.client = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsCfg,
			},
		}
	}
	return d, nil
}

func (d *Dialer) Address() string {
	return d.cfg.Address
}

func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	endpoint, err := ParseEndpoint(d.cfg.Address)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	ws, resp, err := websocket.Dial(dialCtx, endpoint.String(), &websocket.DialOptions{
		HTTPClient: d.client,
		HTTPHeader: header,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyDial(err, resp)
	}
	ws.SetReadLimit(d.cfg.ReadLimit)
	log.Debug().Str("address", endpoint.Redacted()).Msg("relay.Dialer connected")
	return &wsConn{ws: ws}, nil
}

// ParseEndpoint accepts ws and wss URLs with a host.
func ParseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidEndpoint, Op: "dial", Err: fmt.Errorf("%w: empty address", ErrInvalidEndpoint)}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &Error{Kind: KindInvalidEndpoint, Op: "dial", Err: fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)}
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, &Error{Kind: KindInvalidEndpoint, Op: "dial", Err: fmt.Errorf("%w: scheme %q", ErrInvalidEndpoint, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &Error{Kind: KindInvalidEndpoint, Op: "dial", Err: fmt.Errorf("%w: missing host", ErrInvalidEndpoint)}
	}
	return u, nil
}

func clientTLSConfig(c TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
		ServerName:         strings.TrimSpace(c.ServerName),
	}

	if caPath := strings.TrimSpace(c.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("relay: read tls ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("relay: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
