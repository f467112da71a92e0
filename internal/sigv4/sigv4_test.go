package sigv4

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParseAuthorizationHeader(t *testing.T) {
	t.Parallel()
	header := "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20260213/us-west-1/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=abcdef"

	auth, err := ParseAuthorizationHeader(header)
	if err != nil {
		t.Fatalf("ParseAuthorizationHeader: %v", err)
	}
	if auth.Credential.AccessKey != "AKIAEXAMPLE" || len(auth.SignedHeaders) != 2 {
		t.Fatalf("unexpected parse result: %+v", auth)
	}
}

func TestParseAuthorizationHeaderRejectsBadInput(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"wrong scheme":    "AWS3-HMAC-SHA256 Credential=a/b/c/d/e, SignedHeaders=host, Signature=abc",
		"field has no =":  "AWS4-HMAC-SHA256 Credential, SignedHeaders=host, Signature=abc",
		"blank signature": "AWS4-HMAC-SHA256 Credential=a/b/c/d/e, SignedHeaders=host, Signature=",
	}
	for name, header := range cases {
		if _, err := ParseAuthorizationHeader(header); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func presignedRequest(requestTime time.Time, expires string) *http.Request {
	q := url.Values{}
	q.Set("X-Amz-Algorithm", AuthHeaderPrefix)
	q.Set("X-Amz-Credential", "AKIAEXAMPLE/"+requestTime.Format("20060102")+"/us-west-1/s3/aws4_request")
	q.Set("X-Amz-Date", requestTime.Format(DateFormat))
	q.Set("X-Amz-SignedHeaders", "host")
	q.Set("X-Amz-Signature", "deadbeef")
	if expires != "" {
		q.Set("X-Amz-Expires", expires)
	}
	return httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key?"+q.Encode(), nil)
}

func TestParseRequestAuthPresign(t *testing.T) {
	t.Parallel()
	requestTime := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	r := presignedRequest(requestTime, "900")

	auth, err := ParseRequestAuth(r, requestTime.Add(5*time.Minute), 15*time.Minute)
	if err != nil {
		t.Fatalf("ParseRequestAuth presign: %v", err)
	}
	if auth.Mode != AuthModePresign {
		t.Fatalf("expected presign mode, got %s", auth.Mode)
	}
}

func TestParseRequestAuthPresignExpiry(t *testing.T) {
	t.Parallel()
	requestTime := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		expires string
		now     time.Time
		wantErr bool
	}{
		{"within window", "900", requestTime.Add(10 * time.Minute), false},
		{"expired", "900", requestTime.Add(20 * time.Minute), true},
		{"missing X-Amz-Expires", "", requestTime.Add(time.Minute), true},
		{"window exceeds seven-day ceiling", "700000", requestTime.Add(time.Minute), true},
		{"signed far in the future relative to now", "900", requestTime.Add(-8 * 24 * time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := presignedRequest(requestTime, tc.expires)
			_, err := ParseRequestAuth(r, tc.now, 0)
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v, got err=%v", tc.wantErr, err)
			}
		})
	}
}

func TestParseAmzDateSkew(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	if _, err := ParseAmzDate("20260213T080000Z", now, 15*time.Minute); err == nil {
		t.Fatal("expected skew error")
	}
}

func TestBuildCanonicalRequest(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key?list-type=2&prefix=a", nil)
	r.Header.Set("X-Amz-Date", "20260213T100000Z")

	canonical, err := BuildCanonicalRequest(r, []string{"host", "x-amz-date"}, "UNSIGNED-PAYLOAD")
	if err != nil {
		t.Fatalf("BuildCanonicalRequest: %v", err)
	}
	fields := canonicalFields(t, canonical)
	if fields.query != "list-type=2&prefix=a" {
		t.Fatalf("unexpected canonical query line: %q", fields.query)
	}
	if fields.headers != "host:localhost\nx-amz-date:20260213T100000Z" {
		t.Fatalf("unexpected canonical header block: %q", fields.headers)
	}
}

func TestBuildCanonicalRequestEncodesPathAndQueryPerS3Rules(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/file%20name.txt?prefix=a%20b", nil)
	r.URL.Path = "/bucket/dir/file name.txt"
	r.URL.RawPath = "/bucket/dir%2Ffile%20name.txt"
	r.Header.Set("X-Amz-Date", "20260213T100000Z")

	canonical, err := BuildCanonicalRequest(r, []string{"host", "x-amz-date"}, "UNSIGNED-PAYLOAD")
	if err != nil {
		t.Fatalf("BuildCanonicalRequest: %v", err)
	}
	fields := canonicalFields(t, canonical)
	if fields.uri != "/bucket/dir%2Ffile%20name.txt" {
		t.Fatalf("unexpected canonical URI: %q", fields.uri)
	}
	if fields.query != "prefix=a%20b" {
		t.Fatalf("unexpected canonical query: %q", fields.query)
	}
}

func TestBuildCanonicalRequestCanonicalizesDuplicateSignedHeaderValues(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key", nil)
	r.Header.Add("X-Amz-Meta-Test", " value-one ")
	r.Header.Add("X-Amz-Meta-Test", "value-two")

	canonical, err := BuildCanonicalRequest(r, []string{"host", "x-amz-meta-test"}, "UNSIGNED-PAYLOAD")
	if err != nil {
		t.Fatalf("BuildCanonicalRequest: %v", err)
	}
	fields := canonicalFields(t, canonical)
	if fields.headers != "host:localhost\nx-amz-meta-test:value-one,value-two" {
		t.Fatalf("expected canonicalized duplicate header values, got: %q", fields.headers)
	}
}

func TestParseRequestAuthAcceptsStreamingPayloadMode(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	r := httptest.NewRequest(http.MethodPut, "http://localhost/bucket/key", nil)
	r.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20260213/us-west-1/s3/aws4_request, SignedHeaders=host;x-amz-date;x-amz-content-sha256, Signature=abcdef")
	r.Header.Set("X-Amz-Date", "20260213T100000Z")
	r.Header.Set("X-Amz-Content-Sha256", StreamingPayload)

	auth, err := ParseRequestAuth(r, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("expected streaming payload mode to parse, got %v", err)
	}
	if auth.PayloadHash != StreamingPayload {
		t.Fatalf("expected streaming payload hash, got %q", auth.PayloadHash)
	}
	if auth.Mode != AuthModeHeader {
		t.Fatalf("expected header auth mode, got %s", auth.Mode)
	}
}

type canonicalRequestFields struct {
	method, uri, query, headers, signedHeaders, payloadHash string
}

// canonicalFields splits a canonical request into its six AWS-defined
// parts: method, URI, query, headers block, signed-header names, and
// payload hash. The headers block and signed-header list are separated by
// a blank line per AWS's canonical-request format.
func canonicalFields(t *testing.T, canonical string) canonicalRequestFields {
	t.Helper()
	parts := strings.SplitN(canonical, "\n", 4)
	if len(parts) != 4 {
		t.Fatalf("canonical request missing expected leading fields: %q", canonical)
	}
	rest := strings.SplitN(parts[3], "\n\n", 2)
	if len(rest) != 2 {
		t.Fatalf("canonical request missing header/signed-header separator: %q", canonical)
	}
	tail := strings.SplitN(rest[1], "\n", 2)
	if len(tail) != 2 {
		t.Fatalf("canonical request missing signed-headers/payload-hash separator: %q", canonical)
	}
	return canonicalRequestFields{
		method:        parts[0],
		uri:           parts[1],
		query:         parts[2],
		headers:       rest[0],
		signedHeaders: tail[0],
		payloadHash:   tail[1],
	}
}
