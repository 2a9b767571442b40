package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/crm/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow tokens refill evenly
// over Window, and at most Burst may be spent at once.
type RateLimitConfig struct {
	// Name labels the profile in logs and metrics.
	Name              string
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// LimitProfiles are the named limits the API assigns to its routes.
type LimitProfiles struct {
	// Strict guards credential checks against guessing.
	Strict RateLimitConfig
	// Moderate covers session maintenance and writes.
	Moderate RateLimitConfig
	// Lenient covers authenticated reads.
	Lenient RateLimitConfig
	// Public covers probes and other anonymous reads.
	Public RateLimitConfig
}

// DefaultLimitProfiles returns the built-in limits.
func DefaultLimitProfiles() LimitProfiles {
	return LimitProfiles{
		Strict:   RateLimitConfig{Name: "strict", RequestsPerWindow: 5, Window: time.Minute, Burst: 5},
		Moderate: RateLimitConfig{Name: "moderate", RequestsPerWindow: 20, Window: time.Minute, Burst: 20},
		Lenient:  RateLimitConfig{Name: "lenient", RequestsPerWindow: 100, Window: time.Minute, Burst: 100},
		Public:   RateLimitConfig{Name: "public", RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	}
}

// LoadLimitProfiles applies RATELIMIT_{STRICT,MODERATE,LENIENT,PUBLIC}_{REQUESTS,WINDOW_SEC,BURST}
// overrides read through getenv on top of the defaults. Values that are not
// positive integers are ignored.
func LoadLimitProfiles(getenv func(string) string) LimitProfiles {
	p := DefaultLimitProfiles()
	p.Strict = overrideLimit(getenv, "STRICT", p.Strict)
	p.Moderate = overrideLimit(getenv, "MODERATE", p.Moderate)
	p.Lenient = overrideLimit(getenv, "LENIENT", p.Lenient)
	p.Public = overrideLimit(getenv, "PUBLIC", p.Public)
	return p
}

func overrideLimit(getenv func(string) string, prefix string, cfg RateLimitConfig) RateLimitConfig {
	positive := func(suffix string) (int, bool) {
		n, err := strconv.Atoi(getenv("RATELIMIT_" + prefix + "_" + suffix))
		return n, err == nil && n > 0
	}
	if n, ok := positive("REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positive("WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positive("BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

// KeyExtractor derives the bucket a request is counted against. An empty
// key exempts the request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the client address. Forwarding headers count only
// when TrustProxies ran earlier in the chain and vouched for the peer.
func IPKeyExtractor(r *http.Request) string {
	return ClientIP(r)
}

// UserIDKeyExtractor keys on the verified caller as tenant/user. It returns
// "" when the Gate attached no identity.
func UserIDKeyExtractor(r *http.Request) string {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return id.TenantID + "/" + id.UserID
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if k := extract(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

// maxPeekBody caps how much of a JSON body a key extractor will buffer.
const maxPeekBody = 64 << 10

// JSONFieldKeyExtractor extracts a top-level string field from a JSON request
// body, e.g. the email of a login attempt. The body is restored in full so
// the handler can decode it again. Bodies over 64KiB yield no key; put
// LimitBody in front to reject them outright.
func JSONFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody+1))
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
		if err != nil || len(body) > maxPeekBody {
			return ""
		}

		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return ""
		}
		v, _ := fields[fieldName].(string)
		return strings.ToLower(strings.TrimSpace(v))
	}
}

// LimitBody rejects request bodies larger than n bytes with 413 before the
// rest of the chain sees them. Accepted bodies are buffered.
func LimitBody(n int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > n {
				writeTooLarge(w, r, n)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, n))
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				writeTooLarge(w, r, n)
				return
			case err != nil:
				WriteError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooLarge(w http.ResponseWriter, r *http.Request, n int64) {
	slogx.FromContext(r.Context()).Warn("request body too large", "path", r.URL.Path, "limit_bytes", n)
	WriteError(w, http.StatusRequestEntityTooLarge, ErrorCodeRequestTooLarge, "request body too large")
}

// idleEviction is how long a bucket may go unused before it is dropped.
const idleEviction = 10 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// buckets holds one limiter per key.
type buckets struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	byKey     map[string]*bucket
	nextSweep time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	return &buckets{cfg: cfg, now: time.Now, byKey: make(map[string]*bucket)}
}

// take spends one token for key. When the bucket is empty it reports how
// long until the next token.
func (b *buckets) take(key string) (bool, time.Duration) {
	now := b.now()

	b.mu.Lock()
	if now.After(b.nextSweep) {
		for k, bk := range b.byKey {
			if now.Sub(bk.lastSeen) > idleEviction {
				delete(b.byKey, k)
			}
		}
		b.nextSweep = now.Add(idleEviction)
	}
	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.cfg.limit(), b.cfg.Burst)}
		b.byKey[key] = bk
	}
	bk.lastSeen = now
	b.mu.Unlock()

	if bk.lim.AllowN(now, 1) {
		return true, 0
	}
	res := bk.lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return false, wait
}

// RateLimit throttles requests per key. Rejected requests get 429 with
// Retry-After, and onLimited (if non-nil) receives the profile name.
func RateLimit(cfg RateLimitConfig, key KeyExtractor, onLimited func(profile string)) Middleware {
	b := newBuckets(cfg)
	limitHeader := strconv.Itoa(cfg.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Debug("rate limit skipped, no key", "profile", cfg.Name)
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := b.take(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(wait.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Limit", limitHeader)
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"profile", cfg.Name,
				"path", r.URL.Path,
				"retry_after", retry,
			)
			if onLimited != nil {
				onLimited(cfg.Name)
			}
			WriteError(w, http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "too many requests, retry later")
		})
	}
}

// RateLimitByIP limits per client address.
func RateLimitByIP(cfg RateLimitConfig, onLimited func(string)) Middleware {
	return RateLimit(cfg, IPKeyExtractor, onLimited)
}

// RateLimitByUser limits per verified caller and address. Anonymous requests
// fall back to the address alone.
func RateLimitByUser(cfg RateLimitConfig, onLimited func(string)) Middleware {
	return RateLimit(cfg, CompositeKeyExtractor("|", UserIDKeyExtractor, IPKeyExtractor), onLimited)
}

// RateLimitByIPAndJSONField limits per address and a body field, such as the
// email of a login attempt.
func RateLimitByIPAndJSONField(cfg RateLimitConfig, fieldName string, onLimited func(string)) Middleware {
	return RateLimit(cfg, CompositeKeyExtractor("|", IPKeyExtractor, JSONFieldKeyExtractor(fieldName)), onLimited)
}
