// Package fetcher downloads source files over HTTP(S).
package fetcher

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrUnsupportedScheme = eris.New("unsupported url scheme")
	ErrTooLarge          = eris.New("download exceeds size limit")
)

// Fetcher defines the interface for downloading remote files.
type Fetcher interface {
	// Fetch downloads the URL and returns the full body.
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FileName returns the last path segment of a URL, without query or
// fragment. It returns "" when the URL has no file component.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		rawURL, _, _ = strings.Cut(rawURL, "?")
		return path.Base(rawURL)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// checkScheme rejects anything but absolute http and https URLs.
func checkScheme(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return nil, eris.Errorf("fetch: url %q has no host", rawURL)
		}
		return u, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedScheme, "fetch: %q (only http and https are supported)", rawURL)
	}
}
