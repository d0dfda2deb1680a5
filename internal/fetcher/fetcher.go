// Package fetcher retrieves company input files and web pages over local
// paths, HTTP, and FTP, and parses tabular CSV and XLSX content.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Page is a fetched web page.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTML reports whether the page declared an HTML content type.
func (p *Page) HTML() bool {
	return p != nil && strings.Contains(strings.ToLower(p.ContentType), "html")
}

// PageFetcher retrieves a single web page.
type PageFetcher interface {
	Get(ctx context.Context, rawURL string) (*Page, error)
}

// Opener opens an input location for reading.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// SourceOpener dispatches on the location's scheme: http(s) and ftp URLs are
// downloaded, anything else is treated as a local path.
type SourceOpener struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewSourceOpener creates a SourceOpener. Nil fetchers are replaced with
// defaults.
func NewSourceOpener(h *HTTPFetcher, f *FTPFetcher) *SourceOpener {
	if h == nil {
		h = NewHTTPFetcher(HTTPOptions{})
	}
	if f == nil {
		f = NewFTPFetcher(FTPOptions{})
	}
	return &SourceOpener{http: h, ftp: f}
}

// Open returns a reader for location. The caller must close it.
func (s *SourceOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch Scheme(location) {
	case "http", "https":
		return s.http.Download(ctx, location)
	case "ftp":
		return s.ftp.Download(ctx, location)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, eris.Wrap(err, "parse file url")
		}
		return openLocal(u.Path)
	case "":
		return openLocal(location)
	default:
		return nil, eris.Errorf("unsupported input scheme %q", Scheme(location))
	}
}

// Scheme returns the lowercased URL scheme of location, or "" for plain
// paths (including Windows drive letters).
func Scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 1 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}
