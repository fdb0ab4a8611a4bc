package gitx

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a git remote URL to a canonical host/path
// identity so differently spelled remotes can be compared:
//
//   - protocol (https://, git://, ssh://) and user (git@, oauth2@) removed
//   - scp-style git@host:path rewritten as host/path
//   - host lowercased
//   - trailing ".git" and slashes removed
//
// Unparseable input is returned unchanged.
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	host, path, ok := sshShorthandParts(rawURL)
	if !ok {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		host = parsed.Hostname()
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	host = strings.ToLower(host)
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	if host == "" {
		return path
	}
	return host + "/" + path
}

// sshShorthandParts splits scp-style remotes such as
// git@gitlab.example.com:Org/Repo.git into host and path. A remote
// counts as shorthand whenever "@" appears before any "://", even if
// the colon separator is missing.
func sshShorthandParts(raw string) (host, path string, ok bool) {
	at := strings.Index(raw, "@")
	if at < 0 || strings.Contains(raw[:at], "://") {
		return "", "", false
	}
	rest := raw[at+1:]
	if colon := strings.Index(rest, ":"); colon >= 0 {
		host = rest[:colon]
		path = rest[colon+1:]
	}
	return host, path, true
}
