package subscription

import (
	"net/url"
	"strings"
)

// AllowList restricts the hosts subscriptions may point at. A host is allowed
// when it equals an entry or is a subdomain of one. The entry "*" allows every
// host and an empty list allows none.
type AllowList struct {
	any     bool
	domains []string
}

// NewAllowList builds an AllowList from domain entries. Entries are compared
// case-insensitively and a leading dot is ignored.
func NewAllowList(domains ...string) AllowList {
	var al AllowList
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, ".")
		switch d {
		case "":
		case "*":
			al.any = true
		default:
			al.domains = append(al.domains, d)
		}
	}
	return al
}

// AllowHost reports whether host may receive callbacks.
func (al AllowList) AllowHost(host string) bool {
	if al.any {
		return true
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, d := range al.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// AllowURL reports whether the host of rawURL may receive callbacks.
func (al AllowList) AllowURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return al.AllowHost(u.Hostname())
}
