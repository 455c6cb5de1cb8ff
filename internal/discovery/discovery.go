// Package discovery finds MyHOME gateways on the local network.
//
// Gateways answer SSDP M-SEARCH requests for upnp:rootdevice and serve a
// UPnP device description. The description carries the manufacturer,
// model, firmware and (as the serial number) the MAC address, which is
// everything the bridge needs to build a myhome.Identity.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/httpu"
	"github.com/huin/goupnp/ssdp"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/device"
)

// Defaults.
const (
	DefaultTimeout      = 3 * time.Second
	DefaultPort         = 20000
	defaultFetchTimeout = 5 * time.Second
	searchSends         = 3
)

// ErrSearchFailed is returned when the SSDP search itself cannot run.
var ErrSearchFailed = errors.New("discovery: ssdp search failed")

// gatewayManufacturers are matched case-insensitively against the
// description's manufacturer field.
var gatewayManufacturers = []string{"bticino", "legrand"}

// Searcher finds UPnP device description locations.
type Searcher interface {
	Search(ctx context.Context, target string) ([]*url.URL, error)
}

// SSDPSearcher multicasts M-SEARCH requests over UDP.
type SSDPSearcher struct {
	// LocalAddr binds the search to one interface address. Empty uses all.
	LocalAddr string
}

// Search returns the distinct Location headers of every answer.
// ctx must carry a deadline; it bounds the M-SEARCH wait.
func (s SSDPSearcher) Search(ctx context.Context, target string) ([]*url.URL, error) {
	var (
		client *httpu.HTTPUClient
		err    error
	)
	if s.LocalAddr != "" {
		client, err = httpu.NewHTTPUClientAddr(s.LocalAddr)
	} else {
		client, err = httpu.NewHTTPUClient()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening udp client: %w", ErrSearchFailed, err)
	}
	defer func() { _ = client.Close() }()

	responses, err := ssdp.RawSearch(ctx, client, target, searchSends)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	seen := make(map[string]bool, len(responses))
	var locations []*url.URL
	for _, resp := range responses {
		loc, err := resp.Location()
		if err != nil || seen[loc.String()] {
			continue
		}
		seen[loc.String()] = true
		locations = append(locations, loc)
	}
	return locations, nil
}

// Logger is the logging surface used by the discoverer.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Discoverer.
type Config struct {
	// Searcher defaults to SSDPSearcher{}.
	Searcher Searcher
	// Timeout bounds the M-SEARCH wait. Default: 3s.
	Timeout time.Duration
	// FetchTimeout bounds each description download. Default: 5s.
	FetchTimeout time.Duration
	// Port is assigned to discovered gateways. SSDP does not advertise
	// the OpenWebNet port. Default: 20000.
	Port int
}

// Discoverer runs gateway discovery.
type Discoverer struct {
	searcher     Searcher
	timeout      time.Duration
	fetchTimeout time.Duration
	port         int

	mu     sync.RWMutex
	logger Logger
}

// New creates a Discoverer, applying defaults for zero fields.
func New(cfg Config) *Discoverer {
	d := &Discoverer{
		searcher:     cfg.Searcher,
		timeout:      cfg.Timeout,
		fetchTimeout: cfg.FetchTimeout,
		port:         cfg.Port,
		logger:       noopLogger{},
	}
	if d.searcher == nil {
		d.searcher = SSDPSearcher{}
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.fetchTimeout <= 0 {
		d.fetchTimeout = defaultFetchTimeout
	}
	if d.port <= 0 {
		d.port = DefaultPort
	}
	return d
}

// SetLogger sets the logger.
func (d *Discoverer) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

func (d *Discoverer) log() Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Discover searches the network and returns one identity per gateway,
// sorted by MAC. Devices that are not MyHOME gateways, or whose
// description cannot be fetched, are skipped.
//
// Returns:
//   - []myhome.Identity: discovered gateways (may be empty)
//   - error: ErrSearchFailed if the search could not run, or ctx's error
func (d *Discoverer) Discover(ctx context.Context) ([]myhome.Identity, error) {
	searchCtx, cancel := context.WithTimeout(ctx, d.timeout)
	locations, err := d.searcher.Search(searchCtx, ssdp.UPNPRootDevice)
	cancel()
	if err != nil {
		return nil, err
	}
	d.log().Debug("ssdp search finished", "locations", len(locations))

	byMAC := make(map[string]myhome.Identity)
	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := d.describe(ctx, loc)
		if !ok {
			continue
		}
		if _, dup := byMAC[id.MAC]; dup {
			continue
		}
		byMAC[id.MAC] = id
		d.log().Info("gateway discovered",
			"host", id.Host, "mac", id.MAC, "model", id.Model, "firmware", id.Firmware)
	}

	gateways := make([]myhome.Identity, 0, len(byMAC))
	for _, id := range byMAC {
		gateways = append(gateways, id)
	}
	slices.SortFunc(gateways, func(a, b myhome.Identity) int { return strings.Compare(a.MAC, b.MAC) })
	return gateways, nil
}

// describe fetches the description at loc and converts it when it belongs
// to a gateway.
func (d *Discoverer) describe(ctx context.Context, loc *url.URL) (myhome.Identity, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	root, err := goupnp.DeviceByURLCtx(fetchCtx, loc)
	if err != nil {
		d.log().Debug("fetching device description failed", "location", loc.String(), "error", err)
		return myhome.Identity{}, false
	}

	dev := root.Device
	if !isGateway(dev.Manufacturer) {
		return myhome.Identity{}, false
	}
	mac, err := device.NormalizeMAC(dev.SerialNumber)
	if err != nil {
		d.log().Warn("gateway has no usable mac", "location", loc.String(), "serial", dev.SerialNumber)
		return myhome.Identity{}, false
	}

	return myhome.Identity{
		Host:         loc.Hostname(),
		Port:         d.port,
		MAC:          mac,
		Name:         dev.FriendlyName,
		Model:        dev.ModelName,
		Firmware:     dev.ModelNumber,
		Manufacturer: dev.Manufacturer,
		UDN:          dev.UDN,
		SSDPLocation: loc.String(),
	}, true
}

func isGateway(manufacturer string) bool {
	m := strings.ToLower(manufacturer)
	for _, name := range gatewayManufacturers {
		if strings.Contains(m, name) {
			return true
		}
	}
	return false
}
