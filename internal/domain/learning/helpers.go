package learning

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainOf extracts the lowercased domain from an email address
func DomainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "" // Malformed email address
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// RegistrableDomain reduces a host to its registrable domain (eTLD+1)
//
// "mail.login.example.co.uk" becomes "example.co.uk" so that patterns and rules
// learned from one subdomain cover the whole sending organization. Hosts the
// public suffix list cannot reduce are returned lowercased.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// URLDomain returns the registrable domain of a link, or "" if it has no host
func URLDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return RegistrableDomain(u.Hostname())
}

// SenderDomain prefers the declared domain and falls back to the address
func SenderDomain(declared, email string) string {
	if d := RegistrableDomain(declared); d != "" {
		return d
	}
	return RegistrableDomain(DomainOf(email))
}
