package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/resilience"
)

// FTPFetcher downloads source files from FTP mirrors. Connections are
// per-fetch; historical archive pulls are infrequent enough that pooling
// is not worth the bookkeeping.
type FTPFetcher struct {
	timeout time.Duration
	retry   resilience.Policy
}

// NewFTP creates an FTPFetcher with the given dial timeout.
func NewFTP(timeout time.Duration) *FTPFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FTPFetcher{timeout: timeout, retry: resilience.DefaultPolicy()}
}

func parseFTPURI(raw string) (host, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", eris.Wrapf(err, "ftp: parse uri %s", raw)
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return "", "", eris.New("ftp: empty path")
	}
	return host, u.Path, nil
}

// Fetch connects, retrieves the file anonymously, and disconnects. A server
// 550 (no such file) maps to ErrNotFound; dropped connections are retried.
func (f *FTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	host, path, err := parseFTPURI(uri)
	if err != nil {
		return nil, err
	}
	return resilience.Do(ctx, f.retry, "ftp retr "+uri, func(ctx context.Context) ([]byte, error) {
		return f.retrieve(ctx, uri, host, path)
	})
}

func (f *FTPFetcher) retrieve(ctx context.Context, uri, host, path string) ([]byte, error) {
	zap.L().Debug("ftp: fetching", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", host)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, eris.Wrapf(err, "ftp: login to %s", host)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		if strings.Contains(err.Error(), "550") {
			return nil, eris.Wrapf(ErrNotFound, "ftp: %s", uri)
		}
		return nil, eris.Wrapf(err, "ftp: retrieve %s", path)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: read %s", path)
	}
	return data, nil
}
