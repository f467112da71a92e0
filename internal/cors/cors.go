// Package cors implements the per-bucket CORS configuration entity and
// preflight/response evaluator.
package cors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"simples3/internal/metadata"
)

var ErrNoSuchConfiguration = errors.New("cors: no such configuration")

const keyPrefix = "cors/"

// Rule is one CORS rule; each requires at least one origin and one method.
type Rule struct {
	ID             string   `json:"id,omitempty"`
	Origins        []string `json:"origins"`
	Methods        []string `json:"methods"`
	Headers        []string `json:"headers,omitempty"`
	ExposeHeaders  []string `json:"expose_headers,omitempty"`
	MaxAgeSeconds  int      `json:"max_age_seconds,omitempty"`
}

type Configuration struct {
	Rules []Rule `json:"rules"`
}

func (c Configuration) Validate() error {
	var errs []error
	if len(c.Rules) == 0 {
		errs = append(errs, errors.New("cors validation: at least one rule is required"))
	}
	for i, r := range c.Rules {
		prefix := fmt.Sprintf("cors validation: rules[%d]", i)
		if len(r.Origins) == 0 {
			errs = append(errs, fmt.Errorf("%s.origins must have at least one entry", prefix))
		}
		if len(r.Methods) == 0 {
			errs = append(errs, fmt.Errorf("%s.methods must have at least one entry", prefix))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// matchOrigin supports a bare "*" matching any origin, exact match, and one
// leading "*." wildcard subdomain pattern.
func matchOrigin(pattern, origin string) bool {
	if pattern == "*" || pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(origin, suffix) && len(origin) > len(suffix)
	}
	return false
}

func (r Rule) matches(origin string) bool {
	for _, p := range r.Origins {
		if matchOrigin(p, origin) {
			return true
		}
	}
	return false
}

func (r Rule) allowsMethod(method string) bool {
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Store persists per-bucket CORS configuration.
type Store struct {
	meta *metadata.Store
}

func NewStore(meta *metadata.Store) *Store {
	return &Store{meta: meta}
}

func (s *Store) Get(bucket string) (Configuration, error) {
	raw, err := s.meta.Get(keyPrefix + bucket)
	if errors.Is(err, metadata.ErrNotFound) {
		return Configuration{}, ErrNoSuchConfiguration
	}
	if err != nil {
		return Configuration{}, err
	}
	var cfg Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("unmarshal cors configuration for %q: %w", bucket, err)
	}
	return cfg, nil
}

func (s *Store) Put(bucket string, cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal cors configuration: %w", err)
	}
	return s.meta.Put(keyPrefix+bucket, body)
}

func (s *Store) Delete(bucket string) error {
	return s.meta.Delete(keyPrefix + bucket)
}

// Evaluator resolves the effective CORS configuration for each request: a
// per-bucket configuration, falling back to a global list of origins (with
// all methods/headers allowed), falling back to a permissive default.
type Evaluator struct {
	Store          *Store
	GlobalOrigins  []string
}

func (e *Evaluator) resolve(bucket string) Configuration {
	if e.Store != nil {
		if cfg, err := e.Store.Get(bucket); err == nil {
			return cfg
		}
	}
	if len(e.GlobalOrigins) > 0 {
		return Configuration{Rules: []Rule{{
			Origins: e.GlobalOrigins,
			Methods: []string{"GET", "PUT", "POST", "DELETE", "HEAD"},
			Headers: []string{"*"},
		}}}
	}
	return Configuration{Rules: []Rule{{
		Origins: []string{"*"},
		Methods: []string{"GET", "HEAD"},
	}}}
}

func (e *Evaluator) matchingRule(bucket, origin, method string) (Rule, bool) {
	if origin == "" {
		return Rule{}, false
	}
	cfg := e.resolve(bucket)
	for _, r := range cfg.Rules {
		if r.matches(origin) && (method == "" || r.allowsMethod(method)) {
			return r, true
		}
	}
	return Rule{}, false
}

// Preflight handles an OPTIONS request. If no rule matches the Origin, no
// CORS headers are written at all (the browser blocks the real request).
func (e *Evaluator) Preflight(w http.ResponseWriter, bucket, origin, requestedMethod string) {
	rule, ok := e.matchingRule(bucket, origin, requestedMethod)
	if !ok {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", strings.Join(rule.Methods, ", "))
	if len(rule.Headers) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(rule.Headers, ", "))
	}
	if rule.MaxAgeSeconds > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(rule.MaxAgeSeconds))
	}
}

// Apply injects response CORS headers for a non-preflight request carrying
// an Origin header.
func (e *Evaluator) Apply(w http.ResponseWriter, bucket, origin, method string) {
	rule, ok := e.matchingRule(bucket, origin, method)
	if !ok {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", strings.Join(rule.Methods, ", "))
	if len(rule.Headers) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(rule.Headers, ", "))
	}
	if len(rule.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(rule.ExposeHeaders, ", "))
	}
	if rule.MaxAgeSeconds > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(rule.MaxAgeSeconds))
	}
}
