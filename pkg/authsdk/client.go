package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client talks to the auth service the way a browser does: the access and
// refresh credentials live in HTTP-only cookies held by the client's jar.
// Authorized calls go through a Coordinator, so an expired access token is
// refreshed transparently and at most once for any number of concurrent
// callers.
//
// A Client is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// MeRetries is how many times Me retries a transient network failure.
	MeRetries int

	// RetryBackoff is the base delay; attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration

	jar   *resettableJar
	coord *Coordinator
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	jar := newResettableJar()
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			// The login route redirects callers that are already signed in;
			// surface that to the caller instead of following it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		MeRetries:    3,
		RetryBackoff: 200 * time.Millisecond,
		jar:          jar,
	}
	c.coord = &Coordinator{
		Refresh:   c.refresh,
		OnExpired: c.jar.Reset,
		Timeout:   DefaultRefreshTimeout,
	}
	return c
}

// Coordinator exposes the refresh coordinator, mainly for observing state.
func (c *Client) Coordinator() *Coordinator { return c.coord }

// ClearCredentials drops all cookies held by the client.
func (c *Client) ClearCredentials() { c.jar.Reset() }

// Cookies returns the cookies the client would send to path.
func (c *Client) Cookies(path string) []*http.Cookie {
	u, err := url.Parse(c.url(path))
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// resettableJar is a cookie jar whose contents can be discarded atomically.
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() *resettableJar {
	j := &resettableJar{}
	j.Reset()
	return j
}

func (j *resettableJar) Reset() {
	fresh, _ := cookiejar.New(nil) // only fails with a bad PublicSuffixList
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}
