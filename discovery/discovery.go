// Package discovery finds chunk endpoints published in DNS.
//
// A domain advertises its services as SRV records:
//
//	_chunkd-accel._tcp.{domain}  accelerator HTTP endpoints
//	_chunkd-edge._tcp.{domain}   ledger edge caches
//	_chunkd._tcp.{domain}        storage providers
//
// and the provider's pledge key as a TXT record `_chunkd.{domain}` holding
// "chunkd=<compressed pubkey hex>".
package discovery

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/miekg/dns"
)

// SRV service names.
const (
	ServiceAccelerator = "chunkd-accel"
	ServiceEdge        = "chunkd-edge"
	ServiceProvider    = "chunkd"
)

const (
	defaultTimeout = 5 * time.Second
	edns0BufSize   = 4096
	keyPrefix      = "chunkd="
)

// Resolver performs the two lookups discovery needs.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SystemResolver uses the host's resolver configuration.
type SystemResolver struct{}

func (SystemResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, service, proto, name)
	return addrs, err
}

func (SystemResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return net.DefaultResolver.LookupTXT(ctx, name)
}

// DNSResolver queries an upstream server directly. With RequireDNSSEC
// the upstream must set the AD flag on every answer.
type DNSResolver struct {
	Upstream      string
	RequireDNSSEC bool
	Timeout       time.Duration
}

var (
	_ Resolver = SystemResolver{}
	_ Resolver = (*DNSResolver)(nil)
)

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, r.RequireDNSSEC)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &dns.Client{Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s %s: %w", ErrLookupFailed, name, dns.TypeToString[qtype], err)
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("%w: query %s %s: rcode %s",
			ErrLookupFailed, name, dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}
	if r.RequireDNSSEC && !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s %s",
			ErrDNSSECValidationFailed, name, dns.TypeToString[qtype])
	}
	return resp, nil
}

// LookupSRV implements Resolver.
func (r *DNSResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	resp, err := r.query(ctx, fmt.Sprintf("_%s._%s.%s", service, proto, name), dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	var srvs []*net.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, &net.SRV{
				Target:   srv.Target,
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	return srvs, nil
}

// LookupTXT implements Resolver. Split character-strings are joined.
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var txts []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			txts = append(txts, strings.Join(txt.Txt, ""))
		}
	}
	return txts, nil
}

// Endpoints returns host:port pairs for service at domain, ordered by
// priority (ascending) then weight (descending).
func Endpoints(ctx context.Context, r Resolver, domain, service string) ([]string, error) {
	if domain == "" || service == "" {
		return nil, fmt.Errorf("%w: empty domain or service", ErrLookupFailed)
	}
	addrs, err := r.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("%w: SRV _%s._tcp.%s: %w", ErrLookupFailed, service, domain, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: _%s._tcp.%s", ErrNoEndpoints, service, domain)
	}
	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})
	out := make([]string, len(addrs))
	for i, srv := range addrs {
		out[i] = net.JoinHostPort(strings.TrimSuffix(srv.Target, "."), fmt.Sprint(srv.Port))
	}
	return out, nil
}

// URLs is Endpoints rendered as base URLs with scheme.
func URLs(ctx context.Context, r Resolver, domain, service, scheme string) ([]string, error) {
	eps, err := Endpoints(ctx, r, domain, service)
	if err != nil {
		return nil, err
	}
	for i, ep := range eps {
		eps[i] = scheme + "://" + ep
	}
	return eps, nil
}

// ProviderKey reads the provider pledge key published for domain.
func ProviderKey(ctx context.Context, r Resolver, domain string) (*ec.PublicKey, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrLookupFailed)
	}
	name := "_chunkd." + domain
	txts, err := r.LookupTXT(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: TXT %s: %w", ErrLookupFailed, name, err)
	}
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		if !strings.HasPrefix(txt, keyPrefix) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(txt, keyPrefix)))
		if err != nil || len(raw) != 33 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPubKey, name)
		}
		pub, err := ec.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
		}
		return pub, nil
	}
	return nil, fmt.Errorf("%w: no %s record at %s", ErrNoEndpoints, keyPrefix, name)
}
