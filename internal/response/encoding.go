package response

import (
	"bytes"
	"compress/gzip"
	"strconv"
	"strings"
)

// Encoding is a response content-coding.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
)

// Negotiate picks the content-coding for a request's Accept-Encoding value.
// gzip is chosen when listed with a non-zero weight, or when "*" is and gzip
// is not excluded. Anything else is identity.
func Negotiate(acceptEncoding string) Encoding {
	gzipQ, anyQ := -1.0, -1.0
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, q := parseCoding(part)
		switch name {
		case "gzip", "x-gzip":
			gzipQ = q
		case "*":
			anyQ = q
		}
	}

	if gzipQ > 0 || (gzipQ < 0 && anyQ > 0) {
		return EncodingGzip
	}
	return EncodingIdentity
}

// parseCoding splits "gzip;q=0.5" into its lowercased name and weight. A
// missing weight is 1; an unparsable one is 0.
func parseCoding(s string) (string, float64) {
	name, params, _ := strings.Cut(s, ";")
	name = strings.ToLower(strings.TrimSpace(name))

	q := 1.0
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return name, 0
		}
		q = f
	}
	return name, q
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
