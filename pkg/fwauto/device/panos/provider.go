package panos

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/util"
)

// Provider owns the process-wide device connection. The client is built
// on first use; concurrent first uses share one initialization. Close and
// Reset drop the client so the next use reconnects.
type Provider struct {
	cfg Config

	mu     sync.RWMutex
	client *Client
	group  singleflight.Group
}

// NewProvider returns a provider for cfg. Nothing is dialed until the
// first request.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Client returns the connected client, creating it if needed.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	v, err, _ := p.group.Do("connect", func() (interface{}, error) {
		p.mu.RLock()
		existing := p.client
		p.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		c, err := p.connect(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.client = c
		p.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (p *Provider) connect(ctx context.Context) (*Client, error) {
	c, err := NewClient(p.cfg)
	if err != nil {
		return nil, err
	}
	if c.key == "" {
		if p.cfg.Username == "" || p.cfg.Password == "" {
			c.Close()
			return nil, fmt.Errorf("%w: no API key and no credentials for %s", util.ErrNotConnected, p.cfg.Host)
		}
		key, err := c.Keygen(ctx, p.cfg.Username, p.cfg.Password)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.key = key
	}
	util.WithDevice(p.cfg.Host).Info("Connected")
	return c, nil
}

// Do implements API on top of the lazily connected client.
func (p *Provider) Do(ctx context.Context, req Request) (*Response, error) {
	c, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Close releases the client. It is safe to call more than once.
func (p *Provider) Close() error {
	p.mu.Lock()
	c := p.client
	p.client = nil
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	util.WithDevice(p.cfg.Host).Debug("Disconnected")
	return c.Close()
}

// Reset drops the current client so the next request reconnects, for
// example after the API key was rotated.
func (p *Provider) Reset() error {
	return p.Close()
}

// Connected reports whether a client is currently held.
func (p *Provider) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

// SystemInfo is the subset of "show system info" used for context detection.
type SystemInfo struct {
	Hostname  string
	Model     string
	Serial    string
	SWVersion string
	MultiVsys bool
}

// ShowSystemInfo runs "show system info".
func ShowSystemInfo(ctx context.Context, api API) (*SystemInfo, error) {
	resp, err := api.Do(ctx, Op("<show><system><info></info></system></show>"))
	if err != nil {
		return nil, fmt.Errorf("show system info: %w", err)
	}
	return &SystemInfo{
		Hostname:  resp.Text("system/hostname"),
		Model:     resp.Text("system/model"),
		Serial:    resp.Text("system/serial"),
		SWVersion: resp.Text("system/sw-version"),
		MultiVsys: strings.EqualFold(resp.Text("system/multi-vsys"), "on"),
	}, nil
}

// IsManager reports whether the model is a management appliance.
func (s *SystemInfo) IsManager() bool {
	return strings.EqualFold(s.Model, "panorama") || strings.HasPrefix(strings.ToUpper(s.Model), "M-")
}

// DetectContext queries the device and returns base with Kind set from the
// device model. Scope fields of base are kept as configured.
func DetectContext(ctx context.Context, api API, base device.Context) (device.Context, error) {
	info, err := ShowSystemInfo(ctx, api)
	if err != nil {
		return base, err
	}
	detected := base
	if info.IsManager() {
		detected.Kind = device.Manager
	} else {
		detected.Kind = device.Standalone
	}
	util.WithDevice(info.Hostname).Debugf("Detected %s (model %s)", detected, info.Model)
	return detected, nil
}
