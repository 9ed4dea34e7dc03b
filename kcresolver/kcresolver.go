// Package kcresolver locates the Mensago service for a domain and resolves
// keycards with local caching.
//
// Service discovery works through a management record: a TXT record at
// mensago.<domain> carrying the server host, port, and the hashes of the
// organization's current keys. The Resolver interface isolates the lookup
// so tests and alternative discovery schemes can substitute their own.
package kcresolver

import (
	"strconv"
	"strings"

	"github.com/gravitational/trace"
	"github.com/miekg/dns"

	"github.com/darkwyrm/mensago-go-sdk/types"
)

// ManagementRecord is the parsed form of a domain's Mensago management
// record.
type ManagementRecord struct {
	Server string
	Port   int

	// PVK is the hash of the organization's primary verification key, and
	// EK the hash of its encryption key, as published in DNS for keycard
	// cross-checking. SVK is optional.
	PVK string
	SVK string
	EK  string
}

// Resolver finds the management record for a domain.
type Resolver interface {
	LookupManagementRecord(domain types.Domain) (*ManagementRecord, error)
}

// DNSResolver implements Resolver with TXT queries against a configurable
// upstream DNS server.
type DNSResolver struct {
	// Upstream is the DNS server to query in host:port form. NewDNSResolver
	// fills in a public recursive resolver when given an empty value; the
	// lookup itself uses this value as is.
	Upstream string
}

// NewDNSResolver creates a resolver against the given upstream server, or
// the default when empty.
func NewDNSResolver(upstream string) *DNSResolver {
	if upstream == "" {
		upstream = "9.9.9.9:53"
	}
	return &DNSResolver{Upstream: upstream}
}

// LookupManagementRecord queries the TXT records at mensago.<domain> and
// parses them into a ManagementRecord. When no record exists the service
// falls back to the domain itself on the default port.
func (r *DNSResolver) LookupManagementRecord(domain types.Domain) (*ManagementRecord, error) {
	if !domain.IsValid() {
		return nil, trace.BadParameter("bad domain")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn("mensago."+domain.AsString()), dns.TypeTXT)
	msg.RecursionDesired = true

	response, err := dns.Exchange(msg, r.Upstream)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "DNS query failed")
	}

	out := &ManagementRecord{Server: domain.AsString(), Port: 2001}
	if response.Rcode != dns.RcodeSuccess {
		return out, nil
	}

	for _, answer := range response.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}
		parseManagementText(out, strings.Join(txt.Txt, ""))
	}

	return out, nil
}

// parseManagementText applies one TXT string of space-separated key=value
// pairs to the record. Unknown keys are ignored.
func parseManagementText(record *ManagementRecord, text string) {
	for _, pair := range strings.Fields(text) {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		switch strings.ToLower(name) {
		case "server":
			record.Server = value
		case "port":
			if port, err := strconv.Atoi(value); err == nil && port > 0 && port < 65536 {
				record.Port = port
			}
		case "pvk":
			record.PVK = value
		case "svk":
			record.SVK = value
		case "ek":
			record.EK = value
		}
	}
}
