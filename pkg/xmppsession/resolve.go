package xmppsession

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Resolver discovers where a domain's service lives.
type Resolver interface {
	// LookupSRV returns the records of _service._proto.domain ordered by
	// preference. No records is not an error.
	LookupSRV(ctx context.Context, service, proto, domain string) ([]*net.SRV, error)
	LookupHost(ctx context.Context, host string) ([]net.IP, error)
}

// DNSResolver queries SRV records directly and resolves hosts through the
// system resolver.
type DNSResolver struct {
	// Servers are host:port nameserver addresses. Empty means the
	// nameservers of ConfigPath.
	Servers    []string
	ConfigPath string
	Client     *dns.Client
}

var _ Resolver = (*DNSResolver)(nil)

func (r *DNSResolver) servers() ([]string, error) {
	if len(r.Servers) > 0 {
		return r.Servers, nil
	}
	path := r.ConfigPath
	if path == "" {
		path = "/etc/resolv.conf"
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	out := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		out = append(out, net.JoinHostPort(s, conf.Port))
	}
	return out, nil
}

func (r *DNSResolver) LookupSRV(ctx context.Context, service, proto, domain string) ([]*net.SRV, error) {
	servers, err := r.servers()
	if err != nil {
		return nil, err
	}
	client := r.Client
	if client == nil {
		client = new(dns.Client)
	}

	name := dns.Fqdn("_" + service + "._" + proto + "." + domain)
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeSRV)
	m.RecursionDesired = true

	lastErr := errors.Errorf("no nameserver for %s", name)
	for _, server := range servers {
		resp, _, err := client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = errors.Wrapf(err, "query %s at %s", name, server)
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = errors.Errorf("query %s at %s: %s", name, server, dns.RcodeToString[resp.Rcode])
			continue
		}
		var records []*net.SRV
		for _, rr := range resp.Answer {
			srv, ok := rr.(*dns.SRV)
			// RFC 2782: a target of "." means the service is not
			// available at this domain.
			if !ok || srv.Target == "." {
				continue
			}
			records = append(records, &net.SRV{
				Target:   strings.TrimSuffix(srv.Target, "."),
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].Priority != records[j].Priority {
				return records[i].Priority < records[j].Priority
			}
			return records[i].Weight > records[j].Weight
		})
		return records, nil
	}
	return nil, lastErr
}

func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup %s", host)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

type target struct {
	host string
	port int
}

// resolveAddresses lists the transport addresses to try, in order.
func resolveAddresses(ctx context.Context, r Resolver, cfg Config, log logrus.FieldLogger) ([]*net.TCPAddr, error) {
	var targets []target
	if !cfg.DisableSRV && cfg.Server == "" {
		for _, proto := range cfg.srvProtocols() {
			records, err := r.LookupSRV(ctx, service, proto, cfg.Domain)
			if err != nil {
				log.Debugf("SRV lookup over %s failed: %v", proto, err)
				continue
			}
			for _, rec := range records {
				targets = append(targets, target{rec.Target, int(rec.Port)})
			}
			if len(targets) > 0 {
				break
			}
		}
	}
	if len(targets) == 0 {
		host, port := cfg.Domain, DefaultPort
		if cfg.Server != "" {
			host = cfg.Server
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		targets = append(targets, target{host, port})
	}

	var addrs []*net.TCPAddr
	var lastErr error
	for _, t := range targets {
		ips, err := r.LookupHost(ctx, t.host)
		if err != nil {
			log.Debugf("Host lookup of %s failed: %v", t.host, err)
			lastErr = err
			continue
		}
		for _, ip := range ips {
			addrs = append(addrs, &net.TCPAddr{IP: ip, Port: t.port})
		}
	}
	if len(addrs) == 0 {
		if lastErr == nil {
			lastErr = errors.Errorf("no addresses for %s", cfg.Domain)
		}
		return nil, lastErr
	}
	return addrs, nil
}
