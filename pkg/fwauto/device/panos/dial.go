package panos

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fwauto/fwauto/pkg/util"
)

// BastionConfig routes API connections through an SSH jump host.
type BastionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`

	// KnownHostsFile enables host key verification. When empty the host
	// key is not checked.
	KnownHostsFile string `json:"known_hosts_file,omitempty"`
}

// dialer resolves through a refreshed DNS cache, or tunnels every
// connection through an SSH bastion when one is configured.
type dialer struct {
	resolver *dnscache.Resolver
	net      *net.Dialer
	bastion  *ssh.Client

	stop     chan struct{}
	stopOnce sync.Once
}

const dnsRefreshInterval = 5 * time.Minute

func newDialer(timeout time.Duration, bastion *BastionConfig) (*dialer, error) {
	d := &dialer{
		resolver: &dnscache.Resolver{},
		net: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		},
		stop: make(chan struct{}),
	}

	if bastion != nil && bastion.Host != "" {
		client, err := dialBastion(bastion, timeout)
		if err != nil {
			return nil, err
		}
		d.bastion = client
		return d, nil
	}

	go d.refreshLoop()
	return d, nil
}

func (d *dialer) refreshLoop() {
	ticker := time.NewTicker(dnsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.resolver.Refresh(true)
			util.Debug("DNS cache refreshed")
		case <-d.stop:
			return
		}
	}
}

// DialContext is plugged into the HTTP transport.
func (d *dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.bastion != nil {
		return d.bastion.DialContext(ctx, network, address)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return d.net.DialContext(ctx, network, address)
	}

	ips, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := d.net.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close stops the DNS refresher and closes the bastion connection.
func (d *dialer) Close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.bastion != nil {
		return d.bastion.Close()
	}
	return nil
}

func dialBastion(cfg *BastionConfig, timeout time.Duration) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading bastion key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing bastion key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("bastion %s: no password or key file configured", cfg.Host)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, util.NewConnectivityError("bastion dial "+addr, err)
	}
	util.WithDevice(cfg.Host).Debug("Bastion connected")
	return client, nil
}
