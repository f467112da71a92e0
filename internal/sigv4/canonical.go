package sigv4

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// BuildCanonicalRequest assembles the six-part canonical request AWS
// signs over: method, canonical URI, canonical query string, canonical
// headers, signed-headers list, and payload hash.
func BuildCanonicalRequest(r *http.Request, signedHeaders []string, payloadHash string) (string, error) {
	if len(signedHeaders) == 0 {
		return "", ErrInvalidSignedHeaders
	}
	if payloadHash == "" {
		empty := sha256.Sum256(nil)
		payloadHash = hex.EncodeToString(empty[:])
	}

	path := r.URL.RawPath
	if path == "" {
		path = r.URL.EscapedPath()
	}
	headerBlock, headerNames := canonicalHeaderBlock(r.Header, r.Host, signedHeaders)

	lines := []string{
		r.Method,
		canonicalURI(path),
		canonicalQueryString(r.URL.Query()),
		headerBlock,
		headerNames,
		payloadHash,
	}
	return strings.Join(lines, "\n"), nil
}

// canonicalURI re-encodes a request path segment by segment per AWS's
// URI-encoding rules, preserving each segment's already-decoded form so a
// literal "%2F" in a key is not mistaken for a path separator.
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if decoded, err := url.PathUnescape(segment); err == nil {
			segment = decoded
		}
		segments[i] = awsURIEncode(segment, true)
	}
	joined := strings.Join(segments, "/")
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

// canonicalQueryString sorts query keys and values lexicographically and
// re-encodes them, dropping the X-Amz-Signature parameter it must never
// sign over.
func canonicalQueryString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "X-Amz-Signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var pairs []string
	for _, key := range keys {
		vals := append([]string(nil), values[key]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, awsURIEncode(key, true)+"="+awsURIEncode(v, true))
		}
	}
	return strings.Join(pairs, "&")
}

// canonicalHeaderBlock renders the lowercased "name:value\n" lines for the
// signed headers, collapsing internal whitespace in each value, plus the
// semicolon-joined signed-header name list.
func canonicalHeaderBlock(headers http.Header, host string, signedHeaders []string) (block, names string) {
	lines := make([]string, 0, len(signedHeaders))
	for _, raw := range signedHeaders {
		name := strings.ToLower(strings.TrimSpace(raw))
		lines = append(lines, name+":"+collapsedHeaderValue(headers, host, name))
	}
	return strings.Join(lines, "\n") + "\n", strings.Join(signedHeaders, ";")
}

func collapsedHeaderValue(headers http.Header, host, name string) string {
	if name == "host" {
		return host
	}
	values := headers.Values(http.CanonicalHeaderKey(name))
	collapsed := make([]string, 0, len(values))
	for _, v := range values {
		collapsed = append(collapsed, strings.Join(strings.Fields(v), " "))
	}
	return strings.Join(collapsed, ",")
}

const hexDigits = "0123456789ABCDEF"

// awsURIEncode percent-encodes value per AWS's URI-encoding rules: letters,
// digits, and -_.~ pass through unescaped; '/' is preserved only when
// encodeSlash is false.
func awsURIEncode(value string, encodeSlash bool) string {
	var out strings.Builder
	out.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.', c == '~':
			out.WriteByte(c)
		case c == '/' && !encodeSlash:
			out.WriteByte(c)
		default:
			out.WriteByte('%')
			out.WriteByte(hexDigits[c>>4])
			out.WriteByte(hexDigits[c&0x0F])
		}
	}
	return out.String()
}
