package flow

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecodeBody undoes a Content-Encoding for inspection. Unknown encodings and
// corrupt streams return raw unchanged.
func DecodeBody(encoding string, raw []byte) []byte {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" || encoding == "identity" || len(raw) == 0 {
		return raw
	}

	var reader io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return raw
	}
	return decoded
}
