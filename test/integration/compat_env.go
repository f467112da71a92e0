package integration

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"simples3/internal/api"
	"simples3/internal/bucketreg"
	"simples3/internal/cors"
	"simples3/internal/credential"
	"simples3/internal/lifecycle"
	"simples3/internal/metadata"
	"simples3/internal/multipart"
	"simples3/internal/objectstore"
	"simples3/internal/sigv4"
)

type CompatEnv struct {
	t       *testing.T
	handler http.Handler
	now     time.Time
	server  *httptest.Server
}

func NewCompatEnv(t *testing.T) *CompatEnv {
	t.Helper()
	now := time.Now().UTC()
	dir := t.TempDir()
	meta, err := metadata.Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })
	objects, err := objectstore.New(filepath.Join(dir, "data"), 25*1024*1024*1024, meta)
	if err != nil {
		t.Fatalf("new objectstore: %v", err)
	}

	credentials := credential.NewStore(meta)
	if err := credentials.Create(credential.Credential{AccessKeyID: "AKIAFULL", SecretKey: "secret-full", Active: true}); err != nil {
		t.Fatalf("create credential: %v", err)
	}

	svc := &api.Service{
		Objects:     objects,
		Multipart:   multipart.New(filepath.Join(dir, "mpu"), meta, objects),
		Buckets:     bucketreg.NewStore(meta),
		Credentials: credentials,
		Lifecycle:   lifecycle.NewStore(meta),
		CORS:        &cors.Evaluator{Store: cors.NewStore(meta)},
		Region:      "us-west-1",
		ServiceName: "s3",
		ClockSkew:   24 * time.Hour,
		ServiceHost: "",
		Now:         func() time.Time { return now },
	}
	h := svc.Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &CompatEnv{t: t, handler: h, now: now, server: srv}
}

func (e *CompatEnv) BaseURL() string { return e.server.URL }

func (e *CompatEnv) MustReq(t *testing.T, method, path string, body io.Reader, want int) *httptest.ResponseRecorder {
	t.Helper()
	req := e.newSignedRequest(method, path, body, "AKIAFULL", "secret-full", "")
	res := httptest.NewRecorder()
	e.handler.ServeHTTP(res, req)
	if res.Code != want {
		t.Fatalf("unexpected status=%d want=%d path=%s body=%s", res.Code, want, path, res.Body.String())
	}
	return res
}

func (e *CompatEnv) newSignedRequest(method, path string, body io.Reader, accessKey, secret, host string) *http.Request {
	e.t.Helper()
	req := httptest.NewRequest(method, "http://storage.local"+path, body)
	if host != "" {
		req.Host = host
	}
	payloadHash := "UNSIGNED-PAYLOAD"
	req.Header.Set("X-Amz-Date", e.now.UTC().Format(sigv4.DateFormat))
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}

	canonical, err := sigv4.BuildCanonicalRequest(req, signedHeaders, payloadHash)
	if err != nil {
		e.t.Fatalf("BuildCanonicalRequest: %v", err)
	}
	scope := sigv4.CredentialScope{AccessKey: accessKey, Date: e.now.UTC().Format("20060102"), Region: "us-west-1", Service: "s3", Terminal: "aws4_request"}
	stringToSign := sigv4.BuildStringToSign(canonical, e.now.UTC(), scope)
	sig := sigv4.SignatureHex(sigv4.SigningKey(secret, scope.Date, scope.Region, scope.Service), stringToSign)
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential="+scope.AccessKey+"/"+scope.Date+"/"+scope.Region+"/"+scope.Service+"/"+scope.Terminal+", SignedHeaders="+strings.Join(signedHeaders, ";")+", Signature="+sig)
	return req
}

func (e *CompatEnv) Upload(bucket, key, value string) {
	e.MustReq(e.t, http.MethodPut, "/"+bucket, nil, http.StatusOK)
	e.MustReq(e.t, http.MethodPut, "/"+bucket+"/"+key, bytes.NewBufferString(value), http.StatusOK)
}
