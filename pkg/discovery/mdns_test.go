// ABOUTME: Tests for mDNS service discovery
// ABOUTME: Covers TXT parsing, entry conversion, name resolution and lifecycle
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{Name: "kitchen", Port: 8927})
	defer m.Stop()

	assert.Equal(t, "kitchen", m.config.FriendlyName)
	assert.Equal(t, "/stream", m.config.Path)
	assert.Equal(t, 3*time.Second, m.config.Timeout)
	assert.NotNil(t, m.Sinks())
}

func TestAdvertiseRequiresNameAndPort(t *testing.T) {
	m := NewManager(Config{})
	defer m.Stop()
	assert.Error(t, m.Advertise())
}

func TestTXTRecords(t *testing.T) {
	txt := txtRecords(Config{Name: "kitchen", FriendlyName: "Kitchen Speaker", Path: "/stream"})
	fields := parseTXT(txt)

	assert.Equal(t, "kitchen", fields["name"])
	assert.Equal(t, "Kitchen Speaker", fields["friendly"])
	assert.Equal(t, "/stream", fields["path"])
	assert.Equal(t, "1", fields["version"])
}

func TestParseTXT(t *testing.T) {
	fields := parseTXT([]string{"Name=den", "flag", "path=/a=b"})
	assert.Equal(t, "den", fields["name"])
	assert.Equal(t, "", fields["flag"])
	assert.Equal(t, "/a=b", fields["path"])
}

func TestParseEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  *SinkInfo
	}{
		{
			name: "txt fields",
			entry: &mdns.ServiceEntry{
				Name:       "kitchen._resonate-sink._tcp.local.",
				AddrV4:     net.ParseIP("192.168.1.20"),
				Port:       8927,
				InfoFields: []string{"name=kitchen", "friendly=Kitchen", "path=/stream", "version=1"},
			},
			want: &SinkInfo{Name: "kitchen", FriendlyName: "Kitchen", Host: "192.168.1.20", Port: 8927, Path: "/stream", Version: 1},
		},
		{
			name: "instance name fallback",
			entry: &mdns.ServiceEntry{
				Name:   `living\ room._resonate-sink._tcp.local.`,
				AddrV4: net.ParseIP("10.0.0.5"),
				Port:   9000,
			},
			want: &SinkInfo{Name: "living room", FriendlyName: "living room", Host: "10.0.0.5", Port: 9000, Path: "/stream"},
		},
		{
			name: "other service",
			entry: &mdns.ServiceEntry{
				Name:   "printer._ipp._tcp.local.",
				AddrV4: net.ParseIP("10.0.0.9"),
				Port:   631,
			},
		},
		{
			name:  "no address",
			entry: &mdns.ServiceEntry{Name: "x._resonate-sink._tcp.local.", Port: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEntry(tt.entry)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSinkInfoURL(t *testing.T) {
	info := &SinkInfo{Host: "192.168.1.20", Port: 8927, Path: "/stream"}
	assert.Equal(t, "ws://192.168.1.20:8927/stream", info.URL())
}

func TestResolveWaitsForDiscovery(t *testing.T) {
	m := NewManager(Config{})
	defer m.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.record(&SinkInfo{Name: "other", Host: "10.0.0.1", Port: 1, Path: "/stream"})
		m.record(&SinkInfo{Name: "den", Host: "10.0.0.2", Port: 2, Path: "/stream"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url, err := m.Resolve(ctx, "den")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:2/stream", url)

	assert.Len(t, m.Known(), 2)
	assert.Len(t, m.Sinks(), 2)
}

func TestRecordIgnoresRepeats(t *testing.T) {
	m := NewManager(Config{})
	defer m.Stop()

	info := SinkInfo{Name: "den", Host: "10.0.0.2", Port: 2, Path: "/stream"}
	a, b := info, info
	m.record(&a)
	m.record(&b)
	assert.Len(t, m.Sinks(), 1)

	moved := info
	moved.Port = 3
	m.record(&moved)
	assert.Len(t, m.Sinks(), 2)
}

func TestResolveTimeout(t *testing.T) {
	m := NewManager(Config{})
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Resolve(ctx, "attic")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopUnblocksResolve(t *testing.T) {
	m := NewManager(Config{})

	errs := make(chan error, 1)
	go func() {
		_, err := m.Resolve(context.Background(), "attic")
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after Stop")
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()
	require.NoError(t, err)
	require.NotNil(t, ips)

	for _, ip := range ips {
		assert.NotNil(t, ip.To4(), "non-IPv4 address %v", ip)
		assert.False(t, ip.IsLoopback(), "loopback address %v", ip)
	}
}
