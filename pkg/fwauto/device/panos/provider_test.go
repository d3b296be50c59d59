package panos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fwauto/fwauto/internal/testutil"
	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/util"
)

func TestClientDo(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	dev.Seed("/config/shared/address", `<entry name="web-1"><ip-netmask>10.0.0.1/32</ip-netmask></entry>`)

	c, err := NewClient(Config{Host: dev.URL, APIKey: testutil.FakeKey, Metrics: metrics.New()})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := testutil.Context(t)
	resp, err := c.Do(ctx, Get("/config/shared/address/entry[@name='web-1']"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Entry() == nil {
		t.Fatal("expected entry")
	}

	resp, err = c.Do(ctx, Get("/config/shared/address/entry[@name='missing']"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.Empty() {
		t.Error("missing object should yield an empty result")
	}
}

func TestClientErrorClassification(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	c, err := NewClient(Config{Host: dev.URL, APIKey: testutil.FakeKey})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := testutil.Context(t)

	dev.FailNext(1)
	_, err = c.Do(ctx, Get("/config/shared/address"))
	if !errors.Is(err, util.ErrConnectivity) {
		t.Errorf("503 should be a connectivity error, got %v", err)
	}

	dev.RejectNext("12", "Invalid syntax")
	_, err = c.Do(ctx, Get("/config/shared/address"))
	var apiErr *util.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "12" || apiErr.Message != "Invalid syntax" {
		t.Errorf("rejection should be an APIError with device message, got %v", err)
	}

	bad, _ := NewClient(Config{Host: dev.URL, APIKey: "wrong"})
	defer bad.Close()
	_, err = bad.Do(ctx, Get("/config/shared/address"))
	if !errors.Is(err, util.ErrAPI) {
		t.Errorf("bad key should be an API error, got %v", err)
	}

	closed := testutil.NewFakeDevice(t)
	url := closed.URL
	closed.Close()
	unreachable, _ := NewClient(Config{Host: url, APIKey: testutil.FakeKey, Timeout: time.Second})
	defer unreachable.Close()
	_, err = unreachable.Do(ctx, Get("/config/shared/address"))
	if !util.IsRetryable(err) {
		t.Errorf("refused connection should be retryable, got %v", err)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty host")
	}
}

func TestProviderLazyKeygen(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	p := NewProvider(Config{Host: dev.URL, Username: "admin", Password: "secret"})
	defer p.Close()

	if p.Connected() {
		t.Fatal("provider should not connect before first use")
	}

	ctx := testutil.Context(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Do(ctx, Get("/config/shared/address"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if !p.Connected() {
		t.Error("provider should hold a client after use")
	}

	first, _ := p.Client(ctx)
	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}
	if p.Connected() {
		t.Error("Reset should drop the client")
	}
	second, err := p.Client(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("Reset should force a new client")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestProviderCredentialErrors(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	ctx := context.Background()

	p := NewProvider(Config{Host: dev.URL})
	if _, err := p.Do(ctx, Get("/x")); !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("no credentials: got %v", err)
	}

	p = NewProvider(Config{Host: dev.URL, Username: "admin", Password: "wrong"})
	if _, err := p.Do(ctx, Get("/x")); !errors.Is(err, util.ErrAPI) {
		t.Errorf("bad password: got %v", err)
	}
	if p.Connected() {
		t.Error("failed keygen must not leave a client behind")
	}
}

func TestDetectContext(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	p := NewProvider(Config{Host: dev.URL, APIKey: testutil.FakeKey})
	defer p.Close()
	ctx := testutil.Context(t)

	got, err := DetectContext(ctx, p, device.Context{Vsys: "vsys2"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != device.Standalone || got.Vsys != "vsys2" {
		t.Errorf("DetectContext = %+v", got)
	}

	dev.Model = "Panorama"
	got, err = DetectContext(ctx, p, device.Context{DeviceGroup: "DG1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != device.Manager || got.DeviceGroup != "DG1" {
		t.Errorf("DetectContext = %+v", got)
	}
}

func TestSystemInfoIsManager(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"Panorama", true},
		{"M-600", true},
		{"PA-VM", false},
		{"PA-3220", false},
	}
	for _, tt := range tests {
		if got := (&SystemInfo{Model: tt.model}).IsManager(); got != tt.want {
			t.Errorf("IsManager(%s) = %v", tt.model, got)
		}
	}
}
