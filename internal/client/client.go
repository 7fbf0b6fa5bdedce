package client

import "strings"

// NormalizeBaseURL turns a configured hostname into a base URL. A bare host
// gets the https scheme; explicit schemes are kept so tests and plain-http
// installations can point anywhere.
func NormalizeBaseURL(hostname string) string {
	hostname = strings.TrimRight(strings.TrimSpace(hostname), "/")
	if strings.Contains(hostname, "://") {
		return hostname
	}
	return "https://" + hostname
}
