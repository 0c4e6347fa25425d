package metadata

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultGateways are the public IPFS mirrors. "%s" is replaced by the CID.
var DefaultGateways = []string{
	"https://%s.ipfs.dweb.link",
	"https://ipfs.io/ipfs/%s",
	"https://gateway.pinata.cloud/ipfs/%s",
}

// ExtractCID returns the content identifier of an IPFS uri, or "" when the
// uri does not point at IPFS content.
func ExtractCID(uri string) string {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return strings.Trim(strings.TrimPrefix(rest, "ipfs/"), "/")
	}

	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return ""
	}
	if idx := strings.Index(u.Path, "/ipfs/"); idx >= 0 {
		cid := u.Path[idx+len("/ipfs/"):]
		if slash := strings.IndexByte(cid, '/'); slash >= 0 {
			cid = cid[:slash]
		}
		return cid
	}
	// subdomain gateways: <cid>.ipfs.<host>
	if host, _, ok := strings.Cut(u.Host, ".ipfs."); ok && host != "" {
		return host
	}
	return ""
}

// Locators expands a token uri into the list of mirrors to race. The raw uri
// is kept as the last locator when it is not already covered.
func Locators(uri string, gateways []string) []string {
	uri = strings.TrimSpace(uri)
	cid := ExtractCID(uri)
	if cid == "" {
		if uri == "" {
			return nil
		}
		return []string{uri}
	}

	out := make([]string, 0, len(gateways)+1)
	seen := make(map[string]struct{}, len(gateways)+1)
	for _, g := range gateways {
		loc := fmt.Sprintf(g, cid)
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	if _, ok := seen[uri]; !ok && strings.HasPrefix(uri, "http") {
		out = append(out, uri)
	}
	return out
}
