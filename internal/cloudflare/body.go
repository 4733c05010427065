package cloudflare

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maxResponseBody bounds buffered API responses
const maxResponseBody = 16 << 20

// bodyReader returns a reader over resp's decoded body. The transport only
// decompresses transparently when it negotiated gzip itself, so bodies we
// asked to be gzipped are decoded here.
func bodyReader(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return resp.Body, nil
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip body: %w", err)
	}
	return gz, nil
}

// readBody reads and decodes a buffered response body
func readBody(resp *http.Response) ([]byte, error) {
	r, err := bodyReader(resp)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(io.LimitReader(r, maxResponseBody))
}
