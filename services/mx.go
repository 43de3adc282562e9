package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// MXChecker reports whether a mail domain accepts mail.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) bool
}

// DNSMXChecker queries public resolvers for MX records. Answers are cached
// per domain for the life of the checker. When no resolver can be reached
// the domain is assumed valid.
type DNSMXChecker struct {
	servers []string
	client  *dns.Client
	cache   sync.Map
}

// NewDNSMXChecker creates a checker using the given resolvers, or Google and
// Cloudflare when none are given.
func NewDNSMXChecker(servers ...string) *DNSMXChecker {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	return &DNSMXChecker{
		servers: servers,
		client:  &dns.Client{Timeout: 3 * time.Second},
	}
}

// HasMX implements MXChecker.
func (c *DNSMXChecker) HasMX(ctx context.Context, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if v, ok := c.cache.Load(domain); ok {
		return v.(bool)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	result, answered := true, false
	for _, server := range c.servers {
		resp, _, err := c.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		answered = true
		result = resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
		if result {
			break
		}
	}

	if answered {
		c.cache.Store(domain, result)
	}
	return result
}

// EmailDomain returns the part after '@'.
func EmailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}

// FilterEmailsByMX keeps the emails whose domain has MX records.
func FilterEmailsByMX(ctx context.Context, checker MXChecker, emails []string) []string {
	if checker == nil {
		return emails
	}
	out := emails[:0:0]
	for _, e := range emails {
		if checker.HasMX(ctx, EmailDomain(e)) {
			out = append(out, e)
		}
	}
	return out
}
