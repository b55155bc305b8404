// Package httpfile materializes http(s) inputs as local snapshots under
// $TMPDIR so the rest of the system only deals in random-access files.
// The remote object must be immutable for the duration of the operation.
package httpfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gfabase/gfabase/internal/log"
)

// IsURL reports whether the input argument names a remote object.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetch downloads url to a temporary file and returns its path with a
// cleanup function.
func Fetch(ctx context.Context, url string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	f, err := os.CreateTemp("", "gfabase-*.download")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	log.Infof("downloading %s ...", url)
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	log.Debugf("downloaded %d bytes to %s", n, f.Name())
	return f.Name(), cleanup, nil
}
