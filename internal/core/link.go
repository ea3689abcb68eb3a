package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ShareLink is a fully parsed share link. The key lives in the URL fragment,
// which browsers and this client never transmit to the server; that is the
// mechanism that keeps the exchange zero-knowledge.
type ShareLink struct {
	ServerURL string // scheme://host[:port], no trailing slash
	ID        string // opaque share identifier
	Key       Key
}

// BuildShareLink assembles <baseURL>/d/<id>#<encoded-key>.
func BuildShareLink(baseURL, id string, key Key) string {
	return fmt.Sprintf("%s/d/%s#%s", strings.TrimRight(baseURL, "/"), id, EncodeKey(key))
}

// ParseShareLink splits a share link back into server URL, identifier and
// key. It rejects links without a key fragment, since the ciphertext is
// useless without one.
func ParseShareLink(raw string) (*ShareLink, error) {
	link, fragment, err := parseShareLocation(raw)
	if err != nil {
		return nil, err
	}

	if fragment == "" {
		return nil, &ValidationError{Arg: raw, Cause: "missing key fragment after #"}
	}
	link.Key, err = DecodeKey(fragment)
	if err != nil {
		return nil, &ValidationError{Arg: raw, Cause: "malformed key fragment"}
	}
	return link, nil
}

// ParseShareLocation parses a share link but tolerates a missing key
// fragment. Operations that never decrypt (info, burn) only need the server
// and identifier.
func ParseShareLocation(raw string) (*ShareLink, error) {
	link, _, err := parseShareLocation(raw)
	return link, err
}

func parseShareLocation(raw string) (*ShareLink, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", &ValidationError{Arg: raw, Cause: "not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", &ValidationError{Arg: raw, Cause: "missing http(s) scheme"}
	}

	id := strings.TrimPrefix(u.Path, "/d/")
	if id == "" || id == u.Path || strings.Contains(id, "/") {
		return nil, "", &ValidationError{Arg: raw, Cause: "missing /d/<id> path"}
	}

	return &ShareLink{
		ServerURL: u.Scheme + "://" + u.Host,
		ID:        id,
	}, u.Fragment, nil
}
