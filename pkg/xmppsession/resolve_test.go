package xmppsession

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	srv   map[string][]*net.SRV
	hosts map[string][]net.IP

	mu          sync.Mutex
	srvQueries  []string
	hostQueries []string
}

func (r *fakeResolver) LookupSRV(_ context.Context, service, proto, domain string) ([]*net.SRV, error) {
	r.mu.Lock()
	r.srvQueries = append(r.srvQueries, "_"+service+"._"+proto+"."+domain)
	r.mu.Unlock()
	if proto == "udp" && r.srv == nil {
		return nil, errors.New("server failure")
	}
	return r.srv[proto], nil
}

func (r *fakeResolver) LookupHost(_ context.Context, host string) ([]net.IP, error) {
	r.mu.Lock()
	r.hostQueries = append(r.hostQueries, host)
	r.mu.Unlock()
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	ips, ok := r.hosts[host]
	if !ok {
		return nil, errors.Errorf("no such host %s", host)
	}
	return ips, nil
}

var testLog = logrus.StandardLogger()

func TestResolveFallsBackToHostWithoutSRV(t *testing.T) {
	r := &fakeResolver{hosts: map[string][]net.IP{"example.com": {net.ParseIP("192.0.2.1")}}}
	addrs, err := resolveAddresses(context.Background(), r, Config{Domain: "example.com"}, testLog)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"_xmpp-client._tcp.example.com",
		"_xmpp-client._udp.example.com",
		"_xmpp-client._tls.example.com",
		"_xmpp-client._dtls.example.com",
	}, r.srvQueries)
	assert.Equal(t, []string{"example.com"}, r.hostQueries)
	require.Len(t, addrs, 1)
	assert.Equal(t, "192.0.2.1:5222", addrs[0].String())
}

func TestResolveConfiguredProtocolFirst(t *testing.T) {
	r := &fakeResolver{
		srv:   map[string][]*net.SRV{},
		hosts: map[string][]net.IP{"example.com": {net.ParseIP("192.0.2.1")}},
	}
	_, err := resolveAddresses(context.Background(), r, Config{Domain: "example.com", Protocol: "tls"}, testLog)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"_xmpp-client._tls.example.com",
		"_xmpp-client._tcp.example.com",
		"_xmpp-client._udp.example.com",
		"_xmpp-client._dtls.example.com",
	}, r.srvQueries)
}

func TestResolveUsesFirstProtocolWithRecords(t *testing.T) {
	r := &fakeResolver{
		srv: map[string][]*net.SRV{
			"udp": {
				{Target: "a.example.com", Port: 5223, Priority: 10},
				{Target: "b.example.com", Port: 5224, Priority: 20},
			},
			"tls": {{Target: "c.example.com", Port: 5225}},
		},
		hosts: map[string][]net.IP{
			"a.example.com": {net.ParseIP("192.0.2.1"), net.ParseIP("2001:db8::1")},
			"b.example.com": {net.ParseIP("192.0.2.2")},
		},
	}
	addrs, err := resolveAddresses(context.Background(), r, Config{Domain: "example.com"}, testLog)
	require.NoError(t, err)

	assert.Len(t, r.srvQueries, 2)
	var got []string
	for _, a := range addrs {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{"192.0.2.1:5223", "[2001:db8::1]:5223", "192.0.2.2:5224"}, got)
}

func TestResolveServerOverride(t *testing.T) {
	r := &fakeResolver{}
	addrs, err := resolveAddresses(context.Background(), r,
		Config{Domain: "example.com", Server: "127.0.0.1", Port: 15222}, testLog)
	require.NoError(t, err)
	assert.Empty(t, r.srvQueries)
	assert.Equal(t, "127.0.0.1:15222", addrs[0].String())
}

func TestResolveDisableSRV(t *testing.T) {
	r := &fakeResolver{hosts: map[string][]net.IP{"example.com": {net.ParseIP("192.0.2.1")}}}
	_, err := resolveAddresses(context.Background(), r, Config{Domain: "example.com", DisableSRV: true}, testLog)
	require.NoError(t, err)
	assert.Empty(t, r.srvQueries)
}

func TestResolveFailure(t *testing.T) {
	r := &fakeResolver{}
	_, err := resolveAddresses(context.Background(), r, Config{Domain: "nowhere.invalid"}, testLog)
	assert.Error(t, err)
}

func dnsServer(t *testing.T, handler dns.HandlerFunc) string {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSResolverSRV(t *testing.T) {
	addr := dnsServer(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		if q.Name != "_xmpp-client._tcp.example.com." {
			m.SetRcode(req, dns.RcodeNameError)
			w.WriteMsg(m)
			return
		}
		hdr := dns.RR_Header{Name: q.Name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60}
		m.Answer = []dns.RR{
			&dns.SRV{Hdr: hdr, Priority: 20, Weight: 0, Port: 5223, Target: "backup.example.com."},
			&dns.SRV{Hdr: hdr, Priority: 10, Weight: 1, Port: 5222, Target: "light.example.com."},
			&dns.SRV{Hdr: hdr, Priority: 10, Weight: 9, Port: 5222, Target: "heavy.example.com."},
		}
		w.WriteMsg(m)
	})

	r := &DNSResolver{Servers: []string{addr}}
	records, err := r.LookupSRV(context.Background(), "xmpp-client", "tcp", "example.com")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "heavy.example.com", records[0].Target)
	assert.Equal(t, "light.example.com", records[1].Target)
	assert.Equal(t, "backup.example.com", records[2].Target)
	assert.Equal(t, uint16(5223), records[2].Port)

	records, err = r.LookupSRV(context.Background(), "xmpp-client", "udp", "example.com")
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestDNSResolverLiteralHost(t *testing.T) {
	r := &DNSResolver{}
	ips, err := r.LookupHost(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ips[0].Equal(net.ParseIP("127.0.0.1")))
}
