package utils

import (
	"net/url"
	"strings"
)

// HideQuery drops the query part of the URL, as it may keep tokens or signatures
func HideQuery(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return "<wrong url>"
	}
	u.RawQuery = ""
	return u.String()
}

// HideSecret replaces the secret in the string
func HideSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "----")
}
