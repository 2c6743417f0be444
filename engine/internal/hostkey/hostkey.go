// Package hostkey normalizes URLs and hostnames down to the registrable
// domain used as the map key everywhere concurrency, rate-limiting and
// breaker state are tracked (the "Host" of the GLOSSARY).
package hostkey

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Registrable returns the registrable domain for host (e.g. "www.a.example.co.uk"
// -> "example.co.uk"). If host has no recognised public suffix (an IP
// literal, "localhost", a single-label name) it is returned lowercased and
// unchanged, so every host still has a stable, usable key.
func Registrable(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, err := splitPort(host); err == nil {
		host = h
	}
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}

// FromURL returns the registrable domain for a parsed URL's host.
func FromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return Registrable(u.Hostname())
}

func splitPort(host string) (string, string, error) {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i+1:], "]") {
		// crude guard against IPv6 literals which embed colons; only split
		// when what follows looks like a numeric port.
		port := host[i+1:]
		for _, c := range port {
			if c < '0' || c > '9' {
				return host, "", nil
			}
		}
		return host[:i], port, nil
	}
	return host, "", nil
}
