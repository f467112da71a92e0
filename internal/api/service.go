package api

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"simples3/internal/bucketreg"
	"simples3/internal/cors"
	"simples3/internal/credential"
	"simples3/internal/lifecycle"
	"simples3/internal/metrics"
	"simples3/internal/multipart"
	"simples3/internal/objectstore"
	"simples3/internal/policy"
	"simples3/internal/s3"
	"simples3/internal/s3err"
	"simples3/internal/sigv4"
)

// Service wires the object/multipart/bucket/credential stores, the policy
// engine and the CORS evaluator into one http.Handler implementing the
// full S3 routing and authorization surface.
type Service struct {
	Objects     *objectstore.Store
	Multipart   *multipart.Store
	Buckets     *bucketreg.Store
	Credentials *credential.Store
	Lifecycle   *lifecycle.Store
	CORS        *cors.Evaluator
	Metrics     *metrics.Registry

	Region             string
	ServiceName         string
	ClockSkew           time.Duration
	ServiceHost         string
	MaxBodyBytes        int64
	MaxPolicyBodyBytes  int64
	AnonymousGlobal     bool
	PathLive            string
	PathReady           string
	ReadyCheck          func() error
	Now                 func() time.Time
	Logger              *slog.Logger
	TrustProxyHeaders   bool
}

type requestContext struct {
	RequestID  string
	AccessKey  string
	Anonymous  bool
	Auth       *sigv4.RequestAuth
	SigningKey []byte
	Target     s3.RequestTarget
	Operation  s3.Operation
	ErrorCode  string
	PolicyEval policy.EvaluationContext
}

func (s *Service) Handler() http.Handler {
	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := s.ServiceName
	if serviceName == "" {
		serviceName = "s3"
	}

	router := s3.NewRouter(s3.RouterConfig{
		ServiceHost: s.ServiceHost,
		PathLive:    s.PathLive,
		PathReady:   s.PathReady,
		ReadyCheck:  s.ReadyCheck,
		Handler: func(w http.ResponseWriter, r *http.Request, target s3.RequestTarget, op s3.Operation) {
			if r.Method == http.MethodOptions && s.CORS != nil {
				s.CORS.Preflight(w, target.Bucket, r.Header.Get("Origin"), r.Header.Get("Access-Control-Request-Method"))
				w.WriteHeader(http.StatusOK)
				return
			}
			if s.CORS != nil {
				if origin := r.Header.Get("Origin"); origin != "" {
					s.CORS.Apply(w, target.Bucket, origin, r.Method)
				}
			}
			s.limitRequestBody(w, r, op)
			start := nowFn()
			reqID := s3.RequestIDFromContext(r.Context())
			ctx := requestContext{RequestID: reqID, Target: target, Operation: op}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			if op == s3.OperationUnknown {
				ctx.ErrorCode = s3err.MethodNotAllowed.Code
				s3err.Write(sw, reqID, s3err.MethodNotAllowed, r.URL.Path)
				s.logRequest(logger, r, sw.status, time.Since(start), ctx)
				return
			}

			accessKey, anonymous, authReq, signingKey, err := s.authenticate(r, nowFn(), serviceName)
			if err != nil {
				if s.Metrics != nil {
					s.Metrics.AddAuthFailure(s3err.MapError(err).Code)
				}
				apiErr := s3err.MapError(err)
				ctx.ErrorCode = apiErr.Code
				s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
				s.logRequest(logger, r, sw.status, time.Since(start), ctx)
				return
			}
			ctx.AccessKey = accessKey
			ctx.Anonymous = anonymous
			ctx.Auth = authReq
			ctx.SigningKey = signingKey
			ctx.PolicyEval = s.policyEvaluationContextFromRequest(r, op, accessKey, nowFn())

			allowed, err := s.isAuthorizedForOperation(r.Context(), ctx, target, op)
			if err != nil {
				apiErr := s3err.MapError(err)
				ctx.ErrorCode = apiErr.Code
				s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
				s.logRequest(logger, r, sw.status, time.Since(start), ctx)
				return
			}
			if !allowed {
				ctx.ErrorCode = s3err.AccessDenied.Code
				s3err.Write(sw, reqID, s3err.AccessDenied, resourceFromTarget(target))
				s.logRequest(logger, r, sw.status, time.Since(start), ctx)
				return
			}

			rc := context.WithValue(r.Context(), ctxKey{}, ctx)
			if err := s.dispatch(sw, r.WithContext(rc), op, target); err != nil {
				apiErr := s3err.MapError(err)
				ctx.ErrorCode = apiErr.Code
				s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
			}
			s.logRequest(logger, r, sw.status, time.Since(start), ctx)
		},
	})

	return logHealthRequests(logger, router, s.PathLive, s.PathReady)
}

func (s *Service) limitRequestBody(w http.ResponseWriter, r *http.Request, op s3.Operation) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}
	limit := s.MaxBodyBytes
	switch op {
	case s3.OperationPutObject, s3.OperationUploadPart:
		// Object payloads are bounded by the object store's max object size.
		return
	case s3.OperationPutBucketPolicy:
		policyLimit := s.MaxPolicyBodyBytes
		if policyLimit <= 0 {
			policyLimit = 20 * 1024
		}
		if limit <= 0 || limit > policyLimit {
			limit = policyLimit
		}
	case s3.OperationPutBucketCors, s3.OperationPutBucketLifecycle, s3.OperationPutObjectTagging, s3.OperationDeleteObjects:
		xmlLimit := s.MaxBodyBytes
		if xmlLimit <= 0 {
			xmlLimit = 2 * 1024 * 1024
		}
		if limit <= 0 || limit > xmlLimit {
			limit = xmlLimit
		}
	}
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
}

func (s *Service) logRequest(logger *slog.Logger, r *http.Request, status int, latency time.Duration, info requestContext) {
	logger.Info("request complete",
		"request_id", info.RequestID,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.Path,
		"status_code", status,
		"latency_ms", latency.Milliseconds(),
		"principal", info.AccessKey,
		"anonymous", info.Anonymous,
		"bucket", info.Target.Bucket,
		"key", info.Target.Key,
		"error_code", info.ErrorCode,
	)
}

func logHealthRequests(logger *slog.Logger, next http.Handler, pathLive, pathReady string) http.Handler {
	if pathLive == "" {
		pathLive = "/healthz"
	}
	if pathReady == "" {
		pathReady = "/readyz"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if r.URL.Path == pathLive || r.URL.Path == pathReady {
			logger.Info("request complete",
				"request_id", sw.Header().Get("X-Request-Id"),
				"remote_addr", r.RemoteAddr,
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"status_code", sw.status,
				"latency_ms", time.Since(start).Milliseconds(),
				"principal", "",
				"bucket", "",
				"key", "",
				"error_code", "",
			)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	return s.ResponseWriter.Write(p)
}

// hasSigV4Credentials reports whether the request carries anything that
// looks like an attempt at AWS SigV4 auth, header or query-presigned.
func hasSigV4Credentials(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Authorization"), sigv4.AuthHeaderPrefix) {
		return true
	}
	return r.URL.Query().Get("X-Amz-Algorithm") != ""
}

// authenticate implements the signed half of the auth ladder. A request
// with no SigV4 material at all is anonymous; whether an anonymous
// request is then let through is decided by isAuthorizedForOperation.
func (s *Service) authenticate(r *http.Request, now time.Time, serviceName string) (accessKey string, anonymous bool, authReq *sigv4.RequestAuth, signingKey []byte, err error) {
	if !hasSigV4Credentials(r) {
		return "", true, nil, nil, nil
	}

	parsed, err := sigv4.ParseRequestAuth(r, now, s.ClockSkew)
	if err != nil {
		return "", false, nil, nil, err
	}
	if err := sigv4.ValidateScope(parsed.Authorization.Credential, s.Region, serviceName); err != nil {
		return "", false, nil, nil, err
	}
	cred, err := s.Credentials.Get(parsed.Authorization.Credential.AccessKey)
	if err != nil {
		return "", false, nil, nil, sigv4.ErrInvalidAccessKey
	}
	if !cred.Active {
		return "", false, nil, nil, credential.ErrInactive
	}
	if err := sigv4.VerifyRequest(r, parsed, cred.SecretKey, s.Region, serviceName); err != nil {
		return "", false, nil, nil, err
	}
	signingKey = sigv4.SigningKey(cred.SecretKey, parsed.Authorization.Credential.Date, parsed.Authorization.Credential.Region, parsed.Authorization.Credential.Service)
	return cred.AccessKeyID, false, &parsed, signingKey, nil
}

// canonicalAction maps an operation onto the wire S3 action name used both
// for bucket-policy evaluation and for anonymous-access read checks.
func canonicalAction(op s3.Operation) string {
	switch op {
	case s3.OperationGetObject:
		return "s3:GetObject"
	case s3.OperationHeadObject:
		return "s3:HeadObject"
	case s3.OperationPutObject, s3.OperationUploadPart, s3.OperationCreateMultipartUpload, s3.OperationCompleteMultipartUpload, s3.OperationCopyObject:
		return "s3:PutObject"
	case s3.OperationAbortMultipartUpload:
		return "s3:AbortMultipartUpload"
	case s3.OperationDeleteObject, s3.OperationDeleteObjects:
		return "s3:DeleteObject"
	case s3.OperationListObjects, s3.OperationListMultipartUploads, s3.OperationListParts:
		return "s3:ListBucket"
	case s3.OperationListBuckets:
		return "s3:ListAllMyBuckets"
	case s3.OperationCreateBucket:
		return "s3:CreateBucket"
	case s3.OperationDeleteBucket:
		return "s3:DeleteBucket"
	case s3.OperationHeadBucket:
		return "s3:ListBucket"
	case s3.OperationGetBucketPolicy, s3.OperationGetBucketPolicyStatus:
		return "s3:GetBucketPolicy"
	case s3.OperationPutBucketPolicy:
		return "s3:PutBucketPolicy"
	case s3.OperationDeleteBucketPolicy:
		return "s3:DeleteBucketPolicy"
	case s3.OperationGetBucketLifecycle:
		return "s3:GetLifecycleConfiguration"
	case s3.OperationPutBucketLifecycle:
		return "s3:PutLifecycleConfiguration"
	case s3.OperationDeleteBucketLifecycle:
		return "s3:PutLifecycleConfiguration"
	case s3.OperationGetBucketCors:
		return "s3:GetBucketCORS"
	case s3.OperationPutBucketCors:
		return "s3:PutBucketCORS"
	case s3.OperationDeleteBucketCors:
		return "s3:PutBucketCORS"
	case s3.OperationGetObjectTagging:
		return "s3:GetObjectTagging"
	case s3.OperationPutObjectTagging:
		return "s3:PutObjectTagging"
	case s3.OperationDeleteObjectTagging:
		return "s3:DeleteObjectTagging"
	default:
		return ""
	}
}

func isReadOnlyAction(action string) bool {
	switch action {
	case "s3:GetObject", "s3:HeadObject", "s3:ListBucket", "s3:GetObjectTagging":
		return true
	default:
		return false
	}
}

type ctxKey struct{}

func requestContextFrom(ctx context.Context) (requestContext, bool) {
	info, ok := ctx.Value(ctxKey{}).(requestContext)
	return info, ok
}

// isAuthorizedForOperation implements the access decision ladder:
//  1. A request verified via a presigned URL is authorized unconditionally
//     as the signing principal; it never reaches bucket-policy evaluation.
//  2. A header-signed request always reaches the bucket-policy evaluation
//     step below (it may still be denied there).
//  3. With global anonymous mode on, every unsigned request is authorized
//     as the anonymous principal.
//  4. A per-bucket anonymous-read flag allows unsigned reads against that
//     bucket.
//  5. A per-object public flag allows an unsigned GetObject/HeadObject on
//     that object specifically.
//  6. An explicit bucket-policy Allow naming the anonymous principal ("*")
//     lets an otherwise-unsigned request through.
//  7. Anything else unsigned is denied: a bucket without a policy grants
//     the anonymous principal nothing, and a policy without a matching
//     Allow denies it.
func (s *Service) isAuthorizedForOperation(ctx context.Context, info requestContext, target s3.RequestTarget, op s3.Operation) (bool, error) {
	if info.Auth != nil && info.Auth.Mode == sigv4.AuthModePresign {
		return true, nil
	}

	action := canonicalAction(op)

	if info.Anonymous {
		allowedByBuiltins := s.AnonymousGlobal

		if !allowedByBuiltins && target.Bucket != "" && isReadOnlyAction(action) {
			if bucket, err := s.Buckets.Get(target.Bucket); err == nil {
				if bucket.AnonymousRead {
					allowedByBuiltins = true
				}
				if !allowedByBuiltins && bucket.AnonymousListPublic && op == s3.OperationListObjects {
					allowedByBuiltins = true
				}
			}
		}

		if !allowedByBuiltins && target.Bucket != "" && target.Key != "" && (op == s3.OperationGetObject || op == s3.OperationHeadObject) {
			if meta, err := s.Objects.Head(ctx, target.Bucket, target.Key); err == nil && meta.Public {
				allowedByBuiltins = true
			}
		}

		if !allowedByBuiltins {
			allowedByPolicy, err := s.evaluateBucketPolicy(ctx, target.Bucket, info, action, target)
			if err != nil {
				return false, err
			}
			return allowedByPolicy, nil
		}
		return true, nil
	}

	if !shouldApplyBucketPolicy(op) {
		return true, nil
	}
	allowed, err := s.evaluateBucketPolicy(ctx, target.Bucket, info, action, target)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func shouldApplyBucketPolicy(op s3.Operation) bool {
	switch op {
	case s3.OperationUnknown, s3.OperationListBuckets, s3.OperationCreateBucket:
		return false
	default:
		return true
	}
}

func (s *Service) evaluateBucketPolicy(ctx context.Context, bucket string, info requestContext, action string, target s3.RequestTarget) (bool, error) {
	if bucket == "" {
		return info.Anonymous == false, nil
	}
	raw, err := s.Buckets.GetPolicy(bucket)
	if err != nil {
		if errors.Is(err, bucketreg.ErrNotFound) {
			if _, bucketErr := s.Buckets.Get(bucket); bucketErr != nil {
				return false, bucketErr
			}
		}
		// No bucket policy attached: authenticated principals proceed,
		// anonymous ones fall through to deny (no policy to grant them).
		return !info.Anonymous, nil
	}
	doc, err := policy.ParseAndValidate(raw, bucket)
	if err != nil {
		return false, err
	}
	resource := "arn:aws:s3:::" + resourceFromTarget(target)
	candidates := policyPrincipalCandidates(info)
	decision := policy.Evaluate(doc, candidates, action, resource, info.PolicyEval)
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("bucket policy authorization evaluated",
		"bucket", bucket,
		"principal", info.AccessKey,
		"anonymous", info.Anonymous,
		"action", action,
		"resource", resource,
		"policy_allowed", decision.Allowed,
		"policy_denied", decision.Denied,
	)
	if decision.Denied {
		if s.Metrics != nil {
			s.Metrics.AddPolicyDenied(bucket)
		}
		return false, nil
	}
	if decision.Allowed {
		return true, nil
	}
	return !info.Anonymous, nil
}

func policyPrincipalCandidates(info requestContext) []string {
	if info.Anonymous {
		return []string{"*"}
	}
	return []string{info.AccessKey}
}

func (s *Service) policyEvaluationContextFromRequest(r *http.Request, op s3.Operation, accessKey string, now time.Time) policy.EvaluationContext {
	sourceIP := resolveSourceIP(r, s.TrustProxyHeaders)
	return policy.EvaluationContext{
		SecureTransport: r.TLS != nil,
		SourceIP:        sourceIP,
		Headers:         map[string][]string(r.Header.Clone()),
		Attributes:      policyAttributesFromRequest(r, op, accessKey, sourceIP, now),
		CurrentTime:     now.UTC(),
	}
}

func policyAttributesFromRequest(r *http.Request, op s3.Operation, accessKey string, sourceIP net.IP, now time.Time) map[string]string {
	attrs := map[string]string{
		"aws:PrincipalType":    "User",
		"aws:PrincipalAccount": "local",
		"aws:userid":           accessKey,
		"aws:CurrentTime":      now.UTC().Format(time.RFC3339),
		"s3:authType":          "REST-HEADER",
		"s3:signatureversion":  "AWS4-HMAC-SHA256",
		"aws:SecureTransport":  strconv.FormatBool(r.TLS != nil),
	}
	if accessKey != "" {
		attrs["aws:PrincipalArn"] = "arn:simples3:iam::local:user/" + accessKey
	}
	if sourceIP != nil {
		attrs["aws:SourceIp"] = sourceIP.String()
	}
	query := r.URL.Query()
	if v := strings.TrimSpace(query.Get("prefix")); v != "" {
		attrs["s3:prefix"] = v
	}
	if v := strings.TrimSpace(query.Get("delimiter")); v != "" {
		attrs["s3:delimiter"] = v
	}
	if v := strings.TrimSpace(query.Get("max-keys")); v != "" {
		attrs["s3:max-keys"] = v
	}
	if op == s3.OperationListObjects {
		if _, ok := attrs["s3:prefix"]; !ok {
			attrs["s3:prefix"] = ""
		}
		if _, ok := attrs["s3:delimiter"]; !ok {
			attrs["s3:delimiter"] = ""
		}
		if _, ok := attrs["s3:max-keys"]; !ok {
			attrs["s3:max-keys"] = "1000"
		}
	}
	return attrs
}

func resolveSourceIP(r *http.Request, trustProxyHeaders bool) net.IP {
	if trustProxyHeaders {
		if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if ip := parseIPCandidate(first); ip != nil {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			if ip := parseIPCandidate(realIP); ip != nil {
				return ip
			}
		}
	}
	return parseIPCandidate(r.RemoteAddr)
}

func parseIPCandidate(raw string) net.IP {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(candidate); err == nil {
		candidate = host
	}
	candidate = strings.Trim(candidate, "[]")
	return net.ParseIP(candidate)
}

func resourceFromTarget(target s3.RequestTarget) string {
	if target.Bucket == "" {
		return "*"
	}
	if target.Key == "" {
		return target.Bucket
	}
	return target.Bucket + "/" + target.Key
}

func (s *Service) dispatch(w http.ResponseWriter, r *http.Request, op s3.Operation, target s3.RequestTarget) error {
	switch op {
	case s3.OperationListBuckets:
		return s.handleListBuckets(w, r)
	case s3.OperationCreateBucket:
		return s.handleCreateBucket(w, r, target.Bucket)
	case s3.OperationDeleteBucket:
		return s.handleDeleteBucket(w, r, target.Bucket)
	case s3.OperationHeadBucket:
		return s.handleHeadBucket(w, r, target.Bucket)
	case s3.OperationGetBucketPolicy:
		return s.handleGetBucketPolicy(w, r, target.Bucket)
	case s3.OperationPutBucketPolicy:
		return s.handlePutBucketPolicy(w, r, target.Bucket)
	case s3.OperationDeleteBucketPolicy:
		return s.handleDeleteBucketPolicy(w, r, target.Bucket)
	case s3.OperationGetBucketPolicyStatus:
		return s.handleGetBucketPolicyStatus(w, r, target.Bucket)
	case s3.OperationGetBucketLifecycle:
		return s.handleGetBucketLifecycle(w, r, target.Bucket)
	case s3.OperationPutBucketLifecycle:
		return s.handlePutBucketLifecycle(w, r, target.Bucket)
	case s3.OperationDeleteBucketLifecycle:
		return s.handleDeleteBucketLifecycle(w, r, target.Bucket)
	case s3.OperationGetBucketCors:
		return s.handleGetBucketCors(w, r, target.Bucket)
	case s3.OperationPutBucketCors:
		return s.handlePutBucketCors(w, r, target.Bucket)
	case s3.OperationDeleteBucketCors:
		return s.handleDeleteBucketCors(w, r, target.Bucket)
	case s3.OperationListObjects:
		return s.handleListObjectsV2(w, r, target.Bucket)
	case s3.OperationDeleteObjects:
		return s.handleDeleteObjects(w, r, target.Bucket)
	case s3.OperationPutObject:
		return s.handlePutObject(w, r, target)
	case s3.OperationGetObject:
		return s.handleGetObject(w, r, target)
	case s3.OperationHeadObject:
		return s.handleHeadObject(w, r, target)
	case s3.OperationDeleteObject:
		return s.handleDeleteObject(w, r, target)
	case s3.OperationCopyObject:
		return s.handleCopyObject(w, r, target)
	case s3.OperationGetObjectTagging:
		return s.handleGetObjectTagging(w, r, target)
	case s3.OperationPutObjectTagging:
		return s.handlePutObjectTagging(w, r, target)
	case s3.OperationDeleteObjectTagging:
		return s.handleDeleteObjectTagging(w, r, target)
	case s3.OperationCreateMultipartUpload:
		return s.handleCreateMultipartUpload(w, r, target)
	case s3.OperationUploadPart:
		return s.handleUploadPart(w, r, target)
	case s3.OperationCompleteMultipartUpload:
		return s.handleCompleteMultipartUpload(w, r, target)
	case s3.OperationAbortMultipartUpload:
		return s.handleAbortMultipartUpload(w, r, target)
	case s3.OperationListMultipartUploads:
		return s.handleListMultipartUploads(w, r, target.Bucket)
	case s3.OperationListParts:
		return s.handleListParts(w, r, target)
	default:
		return fmt.Errorf("method not allowed")
	}
}

type owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name            `xml:"ListAllMyBucketsResult"`
	XMLNS   string              `xml:"xmlns,attr"`
	Owner   owner               `xml:"Owner"`
	Buckets []listBucketElement `xml:"Buckets>Bucket"`
}

type listBucketElement struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

func (s *Service) handleListBuckets(w http.ResponseWriter, r *http.Request) error {
	info, _ := requestContextFrom(r.Context())
	buckets, err := s.Buckets.List()
	if err != nil {
		return err
	}
	result := listAllMyBucketsResult{
		XMLNS: "http://s3.amazonaws.com/doc/2006-03-01/",
		Owner: owner{ID: "local", DisplayName: "local"},
	}
	for _, b := range buckets {
		if info.AccessKey != "" && b.Owner != "" && b.Owner != info.AccessKey {
			continue
		}
		result.Buckets = append(result.Buckets, listBucketElement{
			Name:         b.Name,
			CreationDate: formatS3XMLTime(b.CreationDate),
		})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(result)
}

type createBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

func (s *Service) handleCreateBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	if r.Body != nil {
		decoder := xml.NewDecoder(r.Body)
		var cfg createBucketConfiguration
		if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
			if isRequestBodyTooLarge(err) {
				return objectstore.ErrEntityTooLarge
			}
			return s3err.InvalidRequest
		}
		location := strings.TrimSpace(cfg.LocationConstraint)
		if location != "" && location != s.Region {
			return s3err.IllegalLocationConstraintException
		}
	}
	info, _ := requestContextFrom(r.Context())
	owner := info.AccessKey
	if err := s.Buckets.Create(bucket, owner); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	empty, err := s.Objects.IsEmpty(r.Context(), bucket)
	if err != nil {
		return err
	}
	if !empty {
		return s3err.BucketNotEmpty
	}
	hasInFlight, err := s.hasInFlightMultipartUploads(r.Context(), bucket)
	if err != nil {
		return err
	}
	if hasInFlight {
		return s3err.BucketNotEmpty
	}
	if err := s.Buckets.Delete(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// hasInFlightMultipartUploads reports whether bucket has any multipart
// upload that was started but never completed or aborted. A bucket in
// that state must not be deleted out from under the upload.
func (s *Service) hasInFlightMultipartUploads(ctx context.Context, bucket string) (bool, error) {
	result, err := s.Multipart.ListUploads(ctx, bucket, multipart.ListUploadsOptions{MaxKeys: 1})
	if err != nil {
		return false, err
	}
	return len(result.Uploads) > 0, nil
}

func (s *Service) handleHeadBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	if _, err := s.Buckets.Get(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleGetBucketPolicy(w http.ResponseWriter, r *http.Request, bucket string) error {
	pol, err := s.Buckets.GetPolicy(bucket)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pol)
	return nil
}

func (s *Service) handlePutBucketPolicy(w http.ResponseWriter, r *http.Request, bucket string) error {
	if r.Body == nil {
		return s3err.InvalidRequest
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isRequestBodyTooLarge(err) {
			return objectstore.ErrEntityTooLarge
		}
		return err
	}
	if _, err := policy.ParseAndValidate(body, bucket); err != nil {
		return err
	}
	if err := s.Buckets.PutPolicy(bucket, body); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleDeleteBucketPolicy(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.Buckets.DeletePolicy(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type bucketPolicyStatusResponse struct {
	XMLName  xml.Name `xml:"PolicyStatus"`
	XMLNS    string   `xml:"xmlns,attr,omitempty"`
	IsPublic bool     `xml:"IsPublic"`
}

func (s *Service) handleGetBucketPolicyStatus(w http.ResponseWriter, r *http.Request, bucket string) error {
	pol, err := s.Buckets.GetPolicy(bucket)
	if err != nil {
		return err
	}
	doc, err := policy.ParseAndValidate(pol, bucket)
	if err != nil {
		return err
	}
	out := bucketPolicyStatusResponse{
		XMLNS:    "http://s3.amazonaws.com/doc/2006-03-01/",
		IsPublic: policy.IsPublic(doc),
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

type lifecycleConfigurationXML struct {
	XMLName xml.Name           `xml:"LifecycleConfiguration"`
	Rules   []lifecycleRuleXML `xml:"Rule"`
}

type lifecycleRuleXML struct {
	ID         string             `xml:"ID,omitempty"`
	Status     string             `xml:"Status"`
	Prefix     string             `xml:"Prefix,omitempty"`
	Filter     lifecycleFilterXML `xml:"Filter"`
	Expiration struct {
		Days int    `xml:"Days,omitempty"`
		Date string `xml:"Date,omitempty"`
	} `xml:"Expiration"`
}

type lifecycleTagXML struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

type lifecycleAndXML struct {
	Prefix                string            `xml:"Prefix,omitempty"`
	Tags                  []lifecycleTagXML `xml:"Tag,omitempty"`
	ObjectSizeGreaterThan int64             `xml:"ObjectSizeGreaterThan,omitempty"`
	ObjectSizeLessThan    int64             `xml:"ObjectSizeLessThan,omitempty"`
}

type lifecycleFilterXML struct {
	Prefix                string           `xml:"Prefix,omitempty"`
	Tag                   *lifecycleTagXML `xml:"Tag,omitempty"`
	And                   *lifecycleAndXML `xml:"And,omitempty"`
	ObjectSizeGreaterThan int64            `xml:"ObjectSizeGreaterThan,omitempty"`
	ObjectSizeLessThan    int64            `xml:"ObjectSizeLessThan,omitempty"`
}

func (s *Service) handleGetBucketLifecycle(w http.ResponseWriter, r *http.Request, bucket string) error {
	cfg, err := s.Lifecycle.Get(bucket)
	if err != nil {
		return err
	}
	out := lifecycleConfigurationXML{}
	for _, rule := range cfg.Rules {
		item := lifecycleRuleXML{ID: rule.ID, Status: rule.Status}
		switch {
		case len(rule.Tags) == 0 && rule.ObjectSizeGreaterThan == 0 && rule.ObjectSizeLessThan == 0:
			item.Filter.Prefix = rule.Prefix
		case len(rule.Tags) == 1 && strings.TrimSpace(rule.Prefix) == "" && rule.ObjectSizeGreaterThan == 0 && rule.ObjectSizeLessThan == 0:
			tags := sortedLifecycleTags(rule.Tags)
			item.Filter.Tag = &tags[0]
		default:
			item.Filter.And = &lifecycleAndXML{
				Prefix:                rule.Prefix,
				Tags:                  sortedLifecycleTags(rule.Tags),
				ObjectSizeGreaterThan: rule.ObjectSizeGreaterThan,
				ObjectSizeLessThan:    rule.ObjectSizeLessThan,
			}
		}
		if rule.ExpirationDays != nil {
			item.Expiration.Days = *rule.ExpirationDays
		}
		if rule.ExpirationDate != nil {
			item.Expiration.Date = rule.ExpirationDate.UTC().Format(time.RFC3339)
		}
		out.Rules = append(out.Rules, item)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func (s *Service) handlePutBucketLifecycle(w http.ResponseWriter, r *http.Request, bucket string) error {
	if _, err := s.Buckets.Get(bucket); err != nil {
		return err
	}
	var req lifecycleConfigurationXML
	if r.Body == nil {
		return s3err.InvalidRequest
	}
	dec := xml.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		if isRequestBodyTooLarge(err) {
			return objectstore.ErrEntityTooLarge
		}
		return s3err.InvalidRequest
	}
	cfg, err := validateLifecycleConfiguration(req)
	if err != nil {
		return err
	}
	if err := s.Lifecycle.Put(bucket, cfg); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteBucketLifecycle(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.Lifecycle.Delete(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func validateLifecycleConfiguration(in lifecycleConfigurationXML) (lifecycle.Configuration, error) {
	if len(in.Rules) == 0 {
		return lifecycle.Configuration{}, s3err.InvalidRequest
	}
	cfg := lifecycle.Configuration{Rules: make([]lifecycle.Rule, 0, len(in.Rules))}
	for _, rule := range in.Rules {
		status := strings.TrimSpace(rule.Status)
		if status != "Enabled" && status != "Disabled" {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}
		filterPrefix := strings.TrimSpace(rule.Filter.Prefix)
		legacyPrefix := strings.TrimSpace(rule.Prefix)
		filterTag := rule.Filter.Tag
		filterAnd := rule.Filter.And
		filterSizeGreaterThan := rule.Filter.ObjectSizeGreaterThan
		filterSizeLessThan := rule.Filter.ObjectSizeLessThan

		prefix := ""
		tags := map[string]string{}
		objectSizeGreaterThan := int64(0)
		objectSizeLessThan := int64(0)
		switch {
		case filterAnd != nil:
			prefix = strings.TrimSpace(filterAnd.Prefix)
			parsedTags, err := parseLifecycleTags(filterAnd.Tags)
			if err != nil {
				return lifecycle.Configuration{}, err
			}
			tags = parsedTags
			objectSizeGreaterThan = filterAnd.ObjectSizeGreaterThan
			objectSizeLessThan = filterAnd.ObjectSizeLessThan
		case filterTag != nil:
			parsedTag, err := parseLifecycleTag(*filterTag)
			if err != nil {
				return lifecycle.Configuration{}, err
			}
			tags[parsedTag.Key] = parsedTag.Value
			objectSizeGreaterThan = filterSizeGreaterThan
			objectSizeLessThan = filterSizeLessThan
		case filterPrefix != "":
			prefix = filterPrefix
			objectSizeGreaterThan = filterSizeGreaterThan
			objectSizeLessThan = filterSizeLessThan
		default:
			prefix = legacyPrefix
			objectSizeGreaterThan = filterSizeGreaterThan
			objectSizeLessThan = filterSizeLessThan
		}
		if len(tags) == 0 {
			tags = nil
		}
		if objectSizeGreaterThan < 0 || objectSizeLessThan < 0 {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}
		if objectSizeGreaterThan > 0 && objectSizeLessThan > 0 && objectSizeGreaterThan >= objectSizeLessThan {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}

		expDays := rule.Expiration.Days
		expirationDate, err := parseLifecycleExpirationDate(rule.Expiration.Date)
		if err != nil {
			return lifecycle.Configuration{}, err
		}
		if expDays < 0 {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}
		hasDate := !expirationDate.IsZero()
		if expDays > 0 && hasDate {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}
		if expDays == 0 && !hasDate {
			return lifecycle.Configuration{}, s3err.InvalidRequest
		}
		var expDaysPtr *int
		var expDatePtr *time.Time
		if hasDate {
			expDatePtr = &expirationDate
		} else {
			expDaysPtr = &expDays
		}
		cfg.Rules = append(cfg.Rules, lifecycle.Rule{
			ID:                    strings.TrimSpace(rule.ID),
			Status:                status,
			Prefix:                prefix,
			Tags:                  tags,
			ObjectSizeGreaterThan: objectSizeGreaterThan,
			ObjectSizeLessThan:    objectSizeLessThan,
			ExpirationDays:        expDaysPtr,
			ExpirationDate:        expDatePtr,
		})
	}
	if err := cfg.Validate(); err != nil {
		return lifecycle.Configuration{}, err
	}
	return cfg, nil
}

func parseLifecycleExpirationDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, s3err.InvalidRequest
}

func parseLifecycleTag(tag lifecycleTagXML) (lifecycleTagXML, error) {
	key := strings.TrimSpace(tag.Key)
	if key == "" {
		return lifecycleTagXML{}, s3err.InvalidRequest
	}
	return lifecycleTagXML{Key: key, Value: tag.Value}, nil
}

func parseLifecycleTags(tags []lifecycleTagXML) (map[string]string, error) {
	if len(tags) == 0 {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		parsed, err := parseLifecycleTag(tag)
		if err != nil {
			return nil, err
		}
		if _, exists := out[parsed.Key]; exists {
			return nil, s3err.InvalidRequest
		}
		out[parsed.Key] = parsed.Value
	}
	return out, nil
}

func sortedLifecycleTags(tags map[string]string) []lifecycleTagXML {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]lifecycleTagXML, 0, len(keys))
	for _, key := range keys {
		out = append(out, lifecycleTagXML{Key: key, Value: tags[key]})
	}
	return out
}

type corsConfigurationXML struct {
	XMLName xml.Name      `xml:"CORSConfiguration"`
	Rules   []corsRuleXML `xml:"CORSRule"`
}

type corsRuleXML struct {
	ID             string   `xml:"ID,omitempty"`
	AllowedOrigins []string `xml:"AllowedOrigin"`
	AllowedMethods []string `xml:"AllowedMethod"`
	AllowedHeaders []string `xml:"AllowedHeader,omitempty"`
	ExposeHeaders  []string `xml:"ExposeHeader,omitempty"`
	MaxAgeSeconds  int      `xml:"MaxAgeSeconds,omitempty"`
}

func (s *Service) handleGetBucketCors(w http.ResponseWriter, r *http.Request, bucket string) error {
	cfg, err := s.CORS.Store.Get(bucket)
	if err != nil {
		return err
	}
	out := corsConfigurationXML{}
	for _, rule := range cfg.Rules {
		out.Rules = append(out.Rules, corsRuleXML{
			ID:             rule.ID,
			AllowedOrigins: rule.Origins,
			AllowedMethods: rule.Methods,
			AllowedHeaders: rule.Headers,
			ExposeHeaders:  rule.ExposeHeaders,
			MaxAgeSeconds:  rule.MaxAgeSeconds,
		})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func (s *Service) handlePutBucketCors(w http.ResponseWriter, r *http.Request, bucket string) error {
	if _, err := s.Buckets.Get(bucket); err != nil {
		return err
	}
	if r.Body == nil {
		return s3err.InvalidRequest
	}
	var req corsConfigurationXML
	dec := xml.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		if isRequestBodyTooLarge(err) {
			return objectstore.ErrEntityTooLarge
		}
		return s3err.MalformedXML
	}
	cfg := cors.Configuration{Rules: make([]cors.Rule, 0, len(req.Rules))}
	for _, rule := range req.Rules {
		cfg.Rules = append(cfg.Rules, cors.Rule{
			ID:            rule.ID,
			Origins:       rule.AllowedOrigins,
			Methods:       rule.AllowedMethods,
			Headers:       rule.AllowedHeaders,
			ExposeHeaders: rule.ExposeHeaders,
			MaxAgeSeconds: rule.MaxAgeSeconds,
		})
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.CORS.Store.Put(bucket, cfg); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteBucketCors(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.CORS.Store.Delete(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type listBucketResult struct {
	XMLName               xml.Name             `xml:"ListBucketResult"`
	XMLNS                 string               `xml:"xmlns,attr"`
	Name                  string               `xml:"Name"`
	EncodingType          string               `xml:"EncodingType,omitempty"`
	Prefix                string               `xml:"Prefix,omitempty"`
	Delimiter             string               `xml:"Delimiter,omitempty"`
	StartAfter            string               `xml:"StartAfter,omitempty"`
	ContinuationToken     string               `xml:"ContinuationToken,omitempty"`
	KeyCount              int                  `xml:"KeyCount"`
	MaxKeys               int                  `xml:"MaxKeys"`
	IsTruncated           bool                 `xml:"IsTruncated"`
	NextContinuationToken string               `xml:"NextContinuationToken,omitempty"`
	Contents              []listObjectContents `xml:"Contents"`
	CommonPrefixes        []commonPrefix       `xml:"CommonPrefixes"`
}

type listObjectContents struct {
	Key          string `xml:"Key"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
	Owner        *owner `xml:"Owner,omitempty"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func (s *Service) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) error {
	q := r.URL.Query()
	listType, err := getSingleQueryValue(q, "list-type")
	if err != nil {
		return err
	}
	if listType != "" && listType != "2" {
		return s3err.InvalidRequest
	}
	encodingType, err := getSingleQueryValue(q, "encoding-type")
	if err != nil {
		return err
	}
	if encodingType != "" && encodingType != "url" {
		return s3err.InvalidRequest
	}
	fetchOwnerValue, err := getSingleQueryValue(q, "fetch-owner")
	if err != nil {
		return err
	}
	fetchOwner := false
	if fetchOwnerValue != "" {
		parsed, parseErr := strconv.ParseBool(fetchOwnerValue)
		if parseErr != nil {
			return s3err.InvalidRequest
		}
		fetchOwner = parsed
	}
	maxKeys := 1000
	maxKeysValue, err := getSingleQueryValue(q, "max-keys")
	if err != nil {
		return err
	}
	if maxKeysValue != "" {
		parsed, parseErr := strconv.Atoi(maxKeysValue)
		if parseErr != nil || parsed < 0 {
			return s3err.InvalidRequest
		}
		maxKeys = parsed
	}
	if maxKeys > 1000 {
		maxKeys = 1000
	}
	prefix, err := getSingleQueryValue(q, "prefix")
	if err != nil {
		return err
	}
	delimiter, err := getSingleQueryValue(q, "delimiter")
	if err != nil {
		return err
	}
	continuationTokenValue, err := getSingleQueryValue(q, "continuation-token")
	if err != nil {
		return err
	}

	info, _ := requestContextFrom(r.Context())
	res, err := s.Objects.ListObjectsV2(r.Context(), bucket, objectstore.ListOptions{
		Prefix:            prefix,
		Delimiter:         delimiter,
		ContinuationToken: continuationTokenValue,
		MaxKeys:           maxKeys,
		PublicOnly:        info.Anonymous,
	})
	if err != nil {
		return err
	}

	continuationToken := continuationTokenValue
	nextContinuationToken := res.NextContinuationToken
	outPrefix, outDelimiter := prefix, delimiter
	if encodingType == "url" {
		outPrefix = url.PathEscape(prefix)
		outDelimiter = url.PathEscape(delimiter)
		continuationToken = url.PathEscape(continuationToken)
		nextContinuationToken = url.PathEscape(nextContinuationToken)
	}

	result := listBucketResult{
		XMLNS:                 "http://s3.amazonaws.com/doc/2006-03-01/",
		Name:                  bucket,
		EncodingType:          encodingType,
		Prefix:                outPrefix,
		Delimiter:             outDelimiter,
		ContinuationToken:     continuationToken,
		KeyCount:              len(res.Objects) + len(res.CommonPrefixes),
		MaxKeys:               maxKeys,
		IsTruncated:           res.IsTruncated,
		NextContinuationToken: nextContinuationToken,
	}
	for _, obj := range res.Objects {
		key := obj.Key
		if encodingType == "url" {
			key = url.PathEscape(key)
		}
		item := listObjectContents{Key: key, ETag: quoteETag(obj.ETag), Size: obj.Size, LastModified: formatS3XMLTime(obj.Modified)}
		if fetchOwner {
			item.Owner = &owner{ID: "local", DisplayName: "local"}
		}
		result.Contents = append(result.Contents, item)
	}
	for _, p := range res.CommonPrefixes {
		out := p
		if encodingType == "url" {
			out = url.PathEscape(p)
		}
		result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: out})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(result)
}

func (s *Service) handlePutObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	opts := objectstore.PutOptions{
		ContentType:  r.Header.Get("Content-Type"),
		UserMetadata: map[string]string{},
		ContentMD5:   r.Header.Get("Content-MD5"),
		Public:       strings.EqualFold(r.Header.Get("x-amz-acl"), "public-read"),
	}
	for key, values := range r.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			opts.UserMetadata[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	if err := validateUserMetadata(opts.UserMetadata); err != nil {
		return err
	}
	tags, err := parseObjectTaggingHeader(r.Header.Get("x-amz-tagging"))
	if err != nil {
		return err
	}
	body, cleanup, err := bodyReaderForContentMD5Pass(r, r.Body)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := s.Objects.Put(r.Context(), target.Bucket, target.Key, body, opts)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		if err := s.Objects.PutTags(r.Context(), target.Bucket, target.Key, tags); err != nil {
			return err
		}
	}
	w.Header().Set("ETag", quoteETag(info.ETag))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleGetObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		if ifRange := r.Header.Get("If-Range"); ifRange != "" {
			meta, err := s.Objects.Head(r.Context(), target.Bucket, target.Key)
			if err != nil {
				return err
			}
			if !ifRangeMatches(meta, ifRange) {
				rangeHeader = ""
			}
		}
	}
	if rangeHeader != "" {
		rc, meta, err := s.Objects.GetRange(r.Context(), target.Bucket, target.Key, rangeHeader)
		if err != nil {
			return err
		}
		defer rc.Close()
		if handled := applyConditionalHeaders(w, r, meta); handled {
			return nil
		}
		start, end, rerr := objectstore.RangeBounds(rangeHeader, meta.ContentLength)
		if rerr != nil {
			return rerr
		}
		applyMetadataHeaders(w.Header(), meta)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.Header().Set("Content-Range", objectstore.ContentRange(start, end, meta.ContentLength))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.Copy(w, rc)
		return nil
	}

	rc, meta, err := s.Objects.Get(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if handled := applyConditionalHeaders(w, r, meta); handled {
		return nil
	}
	applyMetadataHeaders(w.Header(), meta)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

func (s *Service) handleHeadObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	meta, err := s.Objects.Head(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	if handled := applyConditionalHeaders(w, r, meta); handled {
		return nil
	}
	applyMetadataHeaders(w.Header(), meta)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.Objects.Delete(r.Context(), target.Bucket, target.Key); err != nil && !errors.Is(err, objectstore.ErrNoSuchKey) {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type deleteObjectsRequest struct {
	XMLName xml.Name `xml:"Delete"`
	Quiet   bool     `xml:"Quiet"`
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

type deleteObjectsResult struct {
	XMLName xml.Name               `xml:"DeleteResult"`
	XMLNS   string                 `xml:"xmlns,attr"`
	Deleted []deletedObjectXML     `xml:"Deleted,omitempty"`
	Errors  []deleteObjectErrorXML `xml:"Error,omitempty"`
}

type deletedObjectXML struct {
	Key string `xml:"Key"`
}

type deleteObjectErrorXML struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

func (s *Service) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string) error {
	if r.Body == nil {
		return s3err.InvalidRequest
	}
	var req deleteObjectsRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		if isRequestBodyTooLarge(err) {
			return objectstore.ErrEntityTooLarge
		}
		return s3err.MalformedXML
	}
	if len(req.Objects) == 0 || len(req.Objects) > 1000 {
		return s3err.InvalidRequest
	}
	out := deleteObjectsResult{XMLNS: "http://s3.amazonaws.com/doc/2006-03-01/"}
	for _, obj := range req.Objects {
		if err := s.Objects.Delete(r.Context(), bucket, obj.Key); err != nil && !errors.Is(err, objectstore.ErrNoSuchKey) {
			apiErr := s3err.MapError(err)
			out.Errors = append(out.Errors, deleteObjectErrorXML{Key: obj.Key, Code: apiErr.Code, Message: apiErr.Message})
			continue
		}
		_ = s.Objects.DeleteTags(r.Context(), bucket, obj.Key)
		if !req.Quiet {
			out.Deleted = append(out.Deleted, deletedObjectXML{Key: obj.Key})
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

type taggingXML struct {
	XMLName xml.Name `xml:"Tagging"`
	XMLNS   string   `xml:"xmlns,attr,omitempty"`
	TagSet  struct {
		Tags []taggingTagXML `xml:"Tag"`
	} `xml:"TagSet"`
}

type taggingTagXML struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

func (s *Service) handleGetObjectTagging(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	tags, err := s.Objects.Tags(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	out := taggingXML{XMLNS: "http://s3.amazonaws.com/doc/2006-03-01/"}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.TagSet.Tags = append(out.TagSet.Tags, taggingTagXML{Key: k, Value: tags[k]})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func (s *Service) handlePutObjectTagging(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if r.Body == nil {
		return s3err.InvalidRequest
	}
	var req taggingXML
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		if isRequestBodyTooLarge(err) {
			return objectstore.ErrEntityTooLarge
		}
		return s3err.MalformedXML
	}
	tags := make(map[string]string, len(req.TagSet.Tags))
	for _, tag := range req.TagSet.Tags {
		tags[tag.Key] = tag.Value
	}
	if err := s.Objects.PutTags(r.Context(), target.Bucket, target.Key, tags); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteObjectTagging(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.Objects.DeleteTags(r.Context(), target.Bucket, target.Key); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type copyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	ETag         string   `xml:"ETag"`
	LastModified string   `xml:"LastModified"`
}

func (s *Service) handleCopyObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if hasCopySourceConditionalHeader(r.Header) {
		return s3err.InvalidRequest
	}
	headerSource := r.Header.Get("X-Amz-Copy-Source")
	querySource, err := getSingleQueryValue(r.URL.Query(), "x-amz-copy-source")
	if err != nil {
		return err
	}
	rawSource := headerSource
	if rawSource == "" {
		rawSource = querySource
	}
	if rawSource == "" {
		return s3err.InvalidRequest
	}
	srcBucket, srcKey, err := parseCopySource(rawSource)
	if err != nil {
		return err
	}

	var info objectstore.Info
	if strings.EqualFold(r.Header.Get("x-amz-metadata-directive"), "REPLACE") {
		rc, _, getErr := s.Objects.Get(r.Context(), srcBucket, srcKey)
		if getErr != nil {
			return getErr
		}
		defer rc.Close()
		opts := objectstore.PutOptions{ContentType: r.Header.Get("Content-Type"), UserMetadata: map[string]string{}}
		for key, values := range r.Header {
			lower := strings.ToLower(key)
			if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
				opts.UserMetadata[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
		if err := validateUserMetadata(opts.UserMetadata); err != nil {
			return err
		}
		info, err = s.Objects.Put(r.Context(), target.Bucket, target.Key, rc, opts)
		if err != nil {
			return err
		}
	} else {
		info, err = s.Objects.Copy(r.Context(), srcBucket, srcKey, target.Bucket, target.Key)
		if err != nil {
			return err
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(copyObjectResult{ETag: quoteETag(info.ETag), LastModified: formatS3XMLTime(info.Modified)})
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

func (s *Service) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	userMetadata := map[string]string{}
	for key, values := range r.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			userMetadata[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	if err := validateUserMetadata(userMetadata); err != nil {
		return err
	}
	uploadID, err := s.Multipart.Create(r.Context(), target.Bucket, target.Key, r.Header.Get("Content-Type"), userMetadata)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(initiateMultipartUploadResult{
		XMLNS:    "http://s3.amazonaws.com/doc/2006-03-01/",
		Bucket:   target.Bucket,
		Key:      target.Key,
		UploadID: uploadID,
	})
}

func (s *Service) handleUploadPart(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	q := r.URL.Query()
	uploadID, err := getSingleQueryValue(q, "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return s3err.InvalidRequest
	}
	partNumberValue, err := getSingleQueryValue(q, "partNumber")
	if err != nil {
		return err
	}
	partNumber, err := strconv.Atoi(partNumberValue)
	if err != nil || partNumber <= 0 {
		return s3err.InvalidRequest
	}
	body, cleanup, err := bodyReaderForContentMD5Pass(r, r.Body)
	if err != nil {
		return err
	}
	defer cleanup()
	part, err := s.Multipart.UploadPart(r.Context(), target.Bucket, target.Key, uploadID, partNumber, body, s.Objects.MaxObjectSize(), r.Header.Get("Content-MD5"))
	if err != nil {
		return err
	}
	w.Header().Set("ETag", quoteETag(part.ETag))
	w.WriteHeader(http.StatusOK)
	return nil
}

type completeMultipartUploadRequest struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

type completeMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

func (s *Service) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	q := r.URL.Query()
	uploadID, err := getSingleQueryValue(q, "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return s3err.InvalidRequest
	}
	var reqBody completeMultipartUploadRequest
	if r.Body != nil {
		decoder := xml.NewDecoder(r.Body)
		if err := decoder.Decode(&reqBody); err != nil && err != io.EOF {
			if isRequestBodyTooLarge(err) {
				return objectstore.ErrEntityTooLarge
			}
			return multipart.ErrInvalidPart
		}
	}
	parts := make([]multipart.CompletedPart, 0, len(reqBody.Parts))
	for _, part := range reqBody.Parts {
		if part.PartNumber <= 0 {
			return s3err.InvalidRequest
		}
		parts = append(parts, multipart.CompletedPart{PartNumber: part.PartNumber, ETag: part.ETag})
	}

	info, err := s.Multipart.Complete(r.Context(), target.Bucket, target.Key, uploadID, parts)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(completeMultipartUploadResult{
		XMLNS:    "http://s3.amazonaws.com/doc/2006-03-01/",
		Location: "/" + target.Bucket + "/" + target.Key,
		Bucket:   target.Bucket,
		Key:      target.Key,
		ETag:     quoteETag(info.ETag),
	})
}

func (s *Service) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	uploadID, err := getSingleQueryValue(r.URL.Query(), "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return s3err.InvalidRequest
	}
	if err := s.Multipart.Abort(r.Context(), target.Bucket, target.Key, uploadID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type listMultipartUploadsResult struct {
	XMLName            xml.Name                 `xml:"ListMultipartUploadsResult"`
	XMLNS              string                   `xml:"xmlns,attr"`
	Bucket             string                   `xml:"Bucket"`
	EncodingType       string                   `xml:"EncodingType,omitempty"`
	Prefix             string                   `xml:"Prefix,omitempty"`
	KeyMarker          string                   `xml:"KeyMarker,omitempty"`
	UploadIDMarker     string                   `xml:"UploadIdMarker,omitempty"`
	NextKeyMarker      string                   `xml:"NextKeyMarker,omitempty"`
	NextUploadIDMarker string                   `xml:"NextUploadIdMarker,omitempty"`
	MaxUploads         int                      `xml:"MaxUploads"`
	IsTruncated        bool                     `xml:"IsTruncated"`
	Uploads            []listMultipartUploadXML `xml:"Upload"`
}

type listMultipartUploadXML struct {
	Key       string `xml:"Key"`
	UploadID  string `xml:"UploadId"`
	Initiated string `xml:"Initiated"`
}

func (s *Service) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) error {
	q := r.URL.Query()
	uploadIDMarker, err := getSingleQueryValue(q, "upload-id-marker")
	if err != nil {
		return err
	}
	keyMarker, err := getSingleQueryValue(q, "key-marker")
	if err != nil {
		return err
	}
	encodingType, err := getSingleQueryValue(q, "encoding-type")
	if err != nil {
		return err
	}
	if encodingType != "" && encodingType != "url" {
		return s3err.InvalidRequest
	}
	prefix, err := getSingleQueryValue(q, "prefix")
	if err != nil {
		return err
	}
	maxUploads := 1000
	maxUploadsValue, err := getSingleQueryValue(q, "max-uploads")
	if err != nil {
		return err
	}
	if maxUploadsValue != "" {
		parsed, parseErr := strconv.Atoi(maxUploadsValue)
		if parseErr != nil || parsed <= 0 {
			return s3err.InvalidRequest
		}
		maxUploads = parsed
	}
	if maxUploads > 1000 {
		maxUploads = 1000
	}

	res, err := s.Multipart.ListUploads(r.Context(), bucket, multipart.ListUploadsOptions{
		Prefix:  prefix,
		MaxKeys: maxUploads,
	})
	if err != nil {
		return err
	}

	// The store's cursor only paginates by key/upload-id lexicographically;
	// marker values are applied here as a post-filter.
	uploads := res.Uploads
	if keyMarker != "" || uploadIDMarker != "" {
		filtered := make([]multipart.Upload, 0, len(uploads))
		for _, u := range uploads {
			if u.Key < keyMarker || (u.Key == keyMarker && u.UploadID <= uploadIDMarker) {
				continue
			}
			filtered = append(filtered, u)
		}
		uploads = filtered
	}

	outPrefix, outKeyMarker, outUploadIDMarker := prefix, keyMarker, uploadIDMarker
	if encodingType == "url" {
		outPrefix = url.PathEscape(prefix)
		outKeyMarker = url.PathEscape(keyMarker)
		outUploadIDMarker = url.PathEscape(uploadIDMarker)
	}

	out := listMultipartUploadsResult{
		XMLNS:          "http://s3.amazonaws.com/doc/2006-03-01/",
		Bucket:         bucket,
		EncodingType:   encodingType,
		Prefix:         outPrefix,
		KeyMarker:      outKeyMarker,
		UploadIDMarker: outUploadIDMarker,
		MaxUploads:     maxUploads,
		IsTruncated:    res.IsTruncated,
	}
	if len(uploads) > 0 {
		last := uploads[len(uploads)-1]
		out.NextKeyMarker = last.Key
		out.NextUploadIDMarker = last.UploadID
		if encodingType == "url" {
			out.NextKeyMarker = url.PathEscape(last.Key)
			out.NextUploadIDMarker = url.PathEscape(last.UploadID)
		}
	}
	for _, upload := range uploads {
		key := upload.Key
		uploadID := upload.UploadID
		if encodingType == "url" {
			key = url.PathEscape(key)
			uploadID = url.PathEscape(uploadID)
		}
		out.Uploads = append(out.Uploads, listMultipartUploadXML{
			Key:       key,
			UploadID:  uploadID,
			Initiated: formatS3XMLTime(upload.Initiated),
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

type listPartsResult struct {
	XMLName              xml.Name         `xml:"ListPartsResult"`
	XMLNS                string           `xml:"xmlns,attr"`
	Bucket               string           `xml:"Bucket"`
	EncodingType         string           `xml:"EncodingType,omitempty"`
	Key                  string           `xml:"Key"`
	UploadID             string           `xml:"UploadId"`
	PartNumberMarker     int              `xml:"PartNumberMarker"`
	NextPartNumberMarker int              `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int              `xml:"MaxParts"`
	IsTruncated          bool             `xml:"IsTruncated"`
	Parts                []listPartResult `xml:"Part"`
}

type listPartResult struct {
	PartNumber   int    `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

func (s *Service) handleListParts(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	q := r.URL.Query()
	uploadID, err := getSingleQueryValue(q, "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return s3err.InvalidRequest
	}
	encodingType, err := getSingleQueryValue(q, "encoding-type")
	if err != nil {
		return err
	}
	if encodingType != "" && encodingType != "url" {
		return s3err.InvalidRequest
	}
	partNumberMarker := 0
	partNumberMarkerValue, err := getSingleQueryValue(q, "part-number-marker")
	if err != nil {
		return err
	}
	if partNumberMarkerValue != "" {
		parsed, parseErr := strconv.Atoi(partNumberMarkerValue)
		if parseErr != nil || parsed < 0 || parsed > 10000 {
			return s3err.InvalidRequest
		}
		partNumberMarker = parsed
	}
	maxParts := 1000
	maxPartsValue, err := getSingleQueryValue(q, "max-parts")
	if err != nil {
		return err
	}
	if maxPartsValue != "" {
		parsed, parseErr := strconv.Atoi(maxPartsValue)
		if parseErr != nil || parsed <= 0 {
			return s3err.InvalidRequest
		}
		maxParts = parsed
	}
	if maxParts > 1000 {
		maxParts = 1000
	}

	res, err := s.Multipart.ListParts(r.Context(), target.Bucket, target.Key, uploadID, multipart.ListPartsOptions{
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
	})
	if err != nil {
		return err
	}

	key := target.Key
	uploadIDOut := uploadID
	if encodingType == "url" {
		key = url.PathEscape(key)
		uploadIDOut = url.PathEscape(uploadID)
	}

	out := listPartsResult{
		XMLNS:                "http://s3.amazonaws.com/doc/2006-03-01/",
		Bucket:               target.Bucket,
		EncodingType:         encodingType,
		Key:                  key,
		UploadID:             uploadIDOut,
		PartNumberMarker:     partNumberMarker,
		NextPartNumberMarker: res.NextPartNumberMarker,
		MaxParts:             maxParts,
		IsTruncated:          res.IsTruncated,
	}
	for _, part := range res.Parts {
		out.Parts = append(out.Parts, listPartResult{
			PartNumber:   part.PartNumber,
			LastModified: formatS3XMLTime(part.LastModified),
			ETag:         quoteETag(part.ETag),
			Size:         part.Size,
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func parseCopySource(value string) (string, string, error) {
	trimmed := strings.TrimPrefix(value, "/")
	parts := strings.SplitN(trimmed, "?", 2)
	decoded, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", s3err.InvalidRequest
	}
	pathParts := strings.SplitN(decoded, "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", s3err.InvalidRequest
	}
	if !s3.IsValidBucketName(pathParts[0]) {
		return "", "", s3err.InvalidRequest
	}
	return pathParts[0], pathParts[1], nil
}

func applyMetadataHeaders(headers http.Header, meta objectstore.Metadata) {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers.Set("Content-Type", contentType)
	headers.Set("Content-Length", strconv.FormatInt(meta.ContentLength, 10))
	headers.Set("ETag", quoteETag(meta.ETag))
	if !meta.LastModified.IsZero() {
		headers.Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
	}
	for k, v := range meta.UserMetadata {
		headers.Set("x-amz-meta-"+k, v)
	}
}

func quoteETag(etag string) string {
	trimmed := strings.Trim(strings.TrimSpace(etag), "\"")
	if trimmed == "" {
		return "\"\""
	}
	return `"` + trimmed + `"`
}

func formatS3XMLTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func applyConditionalHeaders(w http.ResponseWriter, r *http.Request, meta objectstore.Metadata) bool {
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		if ifMatch != "*" && !headerContainsETag(ifMatch, meta.ETag) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return true
		}
	}
	if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" {
		if ifNoneMatch == "*" || headerContainsETag(ifNoneMatch, meta.ETag) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	lastModified := meta.LastModified.UTC().Truncate(time.Second)
	if ifUnmodifiedSince := r.Header.Get("If-Unmodified-Since"); ifUnmodifiedSince != "" {
		if t, ok := parseHTTPDate(ifUnmodifiedSince); ok && lastModified.After(t) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return true
		}
	}
	if ifModifiedSince := r.Header.Get("If-Modified-Since"); ifModifiedSince != "" {
		if t, ok := parseHTTPDate(ifModifiedSince); ok && !lastModified.After(t) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

func headerContainsETag(headerValue, etag string) bool {
	for _, token := range strings.Split(headerValue, ",") {
		candidate := strings.TrimSpace(token)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, "\"")
		if candidate == etag {
			return true
		}
	}
	return false
}

func parseHTTPDate(value string) (time.Time, bool) {
	parsed, err := time.Parse(http.TimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func ifRangeMatches(meta objectstore.Metadata, ifRange string) bool {
	if ifRange == "" {
		return true
	}
	if headerContainsETag(ifRange, meta.ETag) {
		return true
	}
	if t, ok := parseHTTPDate(ifRange); ok {
		return !meta.LastModified.UTC().Truncate(time.Second).After(t)
	}
	return false
}

func getSingleQueryValue(q url.Values, key string) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", nil
	}
	first := values[0]
	for _, value := range values[1:] {
		if value != first {
			return "", s3err.InvalidRequest
		}
	}
	return first, nil
}

// bodyReaderForContentMD5Pass decodes aws-chunked streaming payloads before
// handing the body to the object/multipart stores, which verify Content-MD5
// themselves when present.
func bodyReaderForContentMD5Pass(r *http.Request, src io.Reader) (io.Reader, func(), error) {
	info, ok := requestContextFrom(r.Context())
	if ok && info.Auth != nil && sigv4.IsStreamingPayload(info.Auth.PayloadHash) {
		expectedDecodedLength := int64(-1)
		if raw := strings.TrimSpace(r.Header.Get("X-Amz-Decoded-Content-Length")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				return nil, nil, s3err.InvalidRequest
			}
			expectedDecodedLength = parsed
		}
		decoded, cleanup, err := sigv4.DecodeStreamingPayload(r.Context(), src, *info.Auth, info.SigningKey, expectedDecodedLength)
		if err != nil {
			return nil, nil, err
		}
		return decoded, cleanup, nil
	}
	return src, func() {}, nil
}

func isRequestBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func validateUserMetadata(meta map[string]string) error {
	const maxMetadataBytes = 2 * 1024
	total := 0
	for k, v := range meta {
		total += len(k) + len(v)
	}
	if total > maxMetadataBytes {
		return s3err.InvalidRequest
	}
	return nil
}

func parseObjectTaggingHeader(raw string) (map[string]string, error) {
	tagging := strings.TrimSpace(raw)
	if tagging == "" {
		return nil, nil
	}
	parsed, err := url.ParseQuery(tagging)
	if err != nil {
		return nil, s3err.InvalidRequest
	}
	if len(parsed) > 10 {
		return nil, s3err.InvalidRequest
	}
	tags := make(map[string]string, len(parsed))
	for key, values := range parsed {
		if strings.TrimSpace(key) == "" || len(values) != 1 {
			return nil, s3err.InvalidRequest
		}
		if len(key) > 128 || len(values[0]) > 256 {
			return nil, s3err.InvalidRequest
		}
		tags[key] = values[0]
	}
	return tags, nil
}

func hasCopySourceConditionalHeader(h http.Header) bool {
	for _, key := range []string{
		"x-amz-copy-source-if-match",
		"x-amz-copy-source-if-none-match",
		"x-amz-copy-source-if-modified-since",
		"x-amz-copy-source-if-unmodified-since",
	} {
		if strings.TrimSpace(h.Get(key)) != "" {
			return true
		}
	}
	return false
}
