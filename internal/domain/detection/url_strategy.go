package detection

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

// URLStrategy summarizes the links of a message
type URLStrategy struct {
	shorteners     []string
	suspiciousTLDs []string
	loginPaths     []string
}

// NewURLStrategy creates a new link analysis strategy
func NewURLStrategy() *URLStrategy {
	return &URLStrategy{
		shorteners:     []string{"bit.ly", "tinyurl.com", "t.co", "goo.gl", "ow.ly", "is.gd", "buff.ly", "cutt.ly"},
		suspiciousTLDs: []string{"xyz", "top", "zip", "click", "country", "gq", "tk", "ml", "work", "rest"},
		loginPaths:     []string{"login", "signin", "sign-in", "logon", "owa", "auth", "verify"},
	}
}

// Name returns the strategy name
func (s *URLStrategy) Name() string {
	return "Link Analysis"
}

// Apply counts links by category. Unparseable links only count toward the total.
func (s *URLStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	u := &fv.URL
	u.Count = len(msg.URLs)

	for _, raw := range msg.URLs {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		host := strings.ToLower(parsed.Hostname())

		if net.ParseIP(host) != nil {
			u.IPAddressCount++
			continue
		}
		if containsString(s.shorteners, learning.RegistrableDomain(host)) {
			u.ShortenedCount++
		}
		if suffix, _ := publicsuffix.PublicSuffix(host); containsString(s.suspiciousTLDs, suffix) {
			u.SuspiciousTLDCount++
		}
		if containsAny(strings.ToLower(parsed.Path), s.loginPaths) {
			u.LoginFormLinks++
		}
		if age, ok := dctx.DomainAges[learning.RegistrableDomain(host)]; ok && age < newDomainDays {
			u.NewDomainCount++
		}
	}
}
