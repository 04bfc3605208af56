// ABOUTME: mDNS service discovery for resonate sinks
// ABOUTME: Sinks advertise themselves, sources browse and resolve them by name
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/version"
)

// ServiceType is the mDNS service sinks announce
const ServiceType = "_resonate-sink._tcp"

// TXT record keys
const (
	txtName     = "name"
	txtFriendly = "friendly"
	txtPath     = "path"
	txtVersion  = "version"
)

// Config holds discovery configuration
type Config struct {
	Name         string        // sink name, advertised as the instance name
	FriendlyName string        // display name (default Name)
	Path         string        // websocket path (default /stream)
	Port         int           // websocket port
	Timeout      time.Duration // length of one browse query (default 3s)
	Logger       *zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	sinks  chan *SinkInfo
	wg     sync.WaitGroup

	mu      sync.Mutex
	server  *mdns.Server
	known   map[string]*SinkInfo
	updated chan struct{} // closed and replaced whenever known changes
}

// SinkInfo describes a discovered sink
type SinkInfo struct {
	Name         string
	FriendlyName string
	Host         string
	Port         int
	Path         string
	Version      int
}

// URL returns the sink's websocket URL
func (s *SinkInfo) URL() string {
	return "ws://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + s.Path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.FriendlyName == "" {
		config.FriendlyName = config.Name
	}
	if config.Path == "" {
		config.Path = "/stream"
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     logging.Or(config.Logger, "discovery"),
		ctx:     ctx,
		cancel:  cancel,
		sinks:   make(chan *SinkInfo, 10),
		known:   make(map[string]*SinkInfo),
		updated: make(chan struct{}),
	}
}

// Advertise announces this sink via mDNS until Stop
func (m *Manager) Advertise() error {
	if m.config.Name == "" || m.config.Port == 0 {
		return fmt.Errorf("advertising requires a name and port")
	}
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Name,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	m.log.Info().
		Str("name", m.config.Name).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("advertising mDNS service")
	return nil
}

func txtRecords(c Config) []string {
	return []string{
		txtName + "=" + c.Name,
		txtFriendly + "=" + c.FriendlyName,
		txtPath + "=" + c.Path,
		txtVersion + "=" + strconv.Itoa(int(version.Interfaces)),
	}
}

// Browse searches for sinks until Stop
func (m *Manager) Browse() {
	m.wg.Add(1)
	go m.browseLoop()
}

// browseLoop continuously browses for sinks
func (m *Manager) browseLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				if info, ok := parseEntry(entry); ok {
					m.record(info)
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     m.config.Timeout,
			Entries:     entries,
			DisableIPv6: true,
		}

		if err := mdns.Query(params); err != nil {
			m.log.Debug().Err(err).Msg("mDNS query failed")
			select {
			case <-time.After(m.config.Timeout):
			case <-m.ctx.Done():
			}
		}
		close(entries)
		<-done
	}
}

// parseEntry builds sink info from a service entry
func parseEntry(entry *mdns.ServiceEntry) (*SinkInfo, bool) {
	if entry.AddrV4 == nil || entry.Port == 0 {
		return nil, false
	}
	if !strings.Contains(entry.Name, ServiceType) {
		return nil, false
	}

	fields := parseTXT(entry.InfoFields)
	info := &SinkInfo{
		Name:         fields[txtName],
		FriendlyName: fields[txtFriendly],
		Host:         entry.AddrV4.String(),
		Port:         entry.Port,
		Path:         fields[txtPath],
	}
	if info.Name == "" {
		info.Name = instanceName(entry.Name)
	}
	if info.FriendlyName == "" {
		info.FriendlyName = info.Name
	}
	if info.Path == "" {
		info.Path = "/stream"
	}
	if v, err := strconv.Atoi(fields[txtVersion]); err == nil {
		info.Version = v
	}
	return info, true
}

// parseTXT splits key=value TXT fields. Keys without a value map to "".
func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

// instanceName strips the service and domain from a full entry name
func instanceName(full string) string {
	name, _, _ := strings.Cut(full, "."+ServiceType)
	return strings.ReplaceAll(name, `\ `, " ")
}

// record stores info and announces it when new or changed
func (m *Manager) record(info *SinkInfo) {
	m.mu.Lock()
	prev, ok := m.known[info.Name]
	if ok && *prev == *info {
		m.mu.Unlock()
		return
	}
	m.known[info.Name] = info
	close(m.updated)
	m.updated = make(chan struct{})
	m.mu.Unlock()

	m.log.Info().
		Str("name", info.Name).
		Str("host", info.Host).
		Int("port", info.Port).
		Msg("discovered sink")

	select {
	case m.sinks <- info:
	default:
		m.log.Debug().Str("name", info.Name).Msg("discovery channel full")
	}
}

// Sinks returns the channel of discovered sinks
func (m *Manager) Sinks() <-chan *SinkInfo {
	return m.sinks
}

// Known returns every sink seen so far
func (m *Manager) Known() []SinkInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SinkInfo, 0, len(m.known))
	for _, info := range m.known {
		out = append(out, *info)
	}
	return out
}

// Resolve returns the websocket URL of the named sink, waiting for it to be
// discovered until ctx is done
func (m *Manager) Resolve(ctx context.Context, name string) (string, error) {
	for {
		m.mu.Lock()
		info, ok := m.known[name]
		updated := m.updated
		m.mu.Unlock()

		if ok {
			return info.URL(), nil
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return "", fmt.Errorf("sink %q not found: %w", name, ctx.Err())
		case <-m.ctx.Done():
			return "", fmt.Errorf("sink %q not found: discovery stopped", name)
		}
	}
}

// Stop ends advertising and browsing
func (m *Manager) Stop() {
	m.cancel()

	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(); err != nil {
			m.log.Warn().Err(err).Msg("failed to stop mDNS server")
		}
	}
	m.wg.Wait()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
