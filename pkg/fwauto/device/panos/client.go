package panos

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/util"
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

// Config describes how to reach one device.
type Config struct {
	// Host is a hostname, host:port or a full base URL. A bare host uses https.
	Host string

	// APIKey authenticates requests. When empty, Username and Password are
	// exchanged for a key on first connect.
	APIKey   string
	Username string
	Password string

	VerifyTLS bool
	Timeout   time.Duration
	Bastion   *BastionConfig

	Metrics *metrics.Metrics
}

// Client is a pooled HTTP client for one device. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	host    string
	key     string
	http    *http.Client
	dialer  *dialer
	metrics *metrics.Metrics
}

// NewClient builds a client. It does not contact the device.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("device host is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d, err := newDialer(timeout, cfg.Bastion)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext:         d.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	base := strings.TrimRight(cfg.Host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	return &Client{
		baseURL: base + "/api/",
		host:    cfg.Host,
		key:     cfg.APIKey,
		http:    &http.Client{Transport: transport, Timeout: timeout},
		dialer:  d,
		metrics: cfg.Metrics,
	}, nil
}

// Host returns the configured device address.
func (c *Client) Host() string {
	return c.host
}

// Do sends one request. Transport failures and 5xx responses return
// *util.ConnectivityError; device rejections return *util.APIError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, req, c.key)
	result := "ok"
	if err != nil {
		result = util.Category(err)
	}
	c.metrics.RecordDeviceCall(string(req.Type), result, time.Since(start))
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request, key string) (*Response, error) {
	op := req.String()
	util.WithDevice(c.host).Debugf("API %s", op)

	body := req.Values(key).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, util.NewConnectivityError(op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, util.NewConnectivityError(op, fmt.Errorf("reading body: %w", err))
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, util.NewConnectivityError(op, fmt.Errorf("HTTP %d", httpResp.StatusCode))
	case httpResp.StatusCode == http.StatusForbidden || httpResp.StatusCode == http.StatusUnauthorized:
		resp, perr := ParseResponse(data)
		if perr == nil {
			return resp, nil
		}
		if bytes.Contains(data, []byte("<response")) {
			return nil, perr
		}
		return nil, util.NewAPIError(strconv.Itoa(httpResp.StatusCode), "invalid credentials")
	}

	return ParseResponse(data)
}

// Keygen exchanges a username and password for an API key.
func (c *Client) Keygen(ctx context.Context, user, password string) (string, error) {
	req := Request{
		Type:   TypeKeygen,
		Params: map[string]string{"user": user, "password": password},
	}
	resp, err := c.do(ctx, req, "")
	if err != nil {
		return "", fmt.Errorf("key generation: %w", err)
	}
	key := resp.Text("key")
	if key == "" {
		return "", util.NewAPIError("", "key generation returned no key")
	}
	return key, nil
}

// Close releases idle connections, the DNS refresher and any bastion.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return c.dialer.Close()
}
