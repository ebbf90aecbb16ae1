package remote

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// MaxClientReuse is the per-client reuse cap (4), matching
// context.cpp's use_counts_ eviction threshold.
const MaxClientReuse = 4

// pooledClient is one entry in a zone/bucket's idle stack.
type pooledClient struct {
	client    *http.Client
	useCount  int
	tainted   bool
}

// Pool is the connection pool keyed by "{zone}/{bucket}", each key
// backed by a LIFO stack of idle clients, grounded on
// context.h's conn_context.
type Pool struct {
	mu       sync.Mutex
	stacks   map[string][]*pooledClient
	proxyURL string
	timeout  time.Duration
}

// NewPool creates an empty connection pool. proxyURL may be empty.
func NewPool(proxyURL string, timeout time.Duration) *Pool {
	return &Pool{
		stacks:   make(map[string][]*pooledClient),
		proxyURL: proxyURL,
		timeout:  timeout,
	}
}

func key(zone, bucket string) string { return zone + "/" + bucket }

// Handle is a scoped lease on a pooled client. Callers must call Release
// exactly once, passing whether the request using it failed (taint).
type Handle struct {
	pool   *Pool
	key    string
	client *pooledClient
}

// Client returns the underlying *http.Client for issuing the request.
func (h *Handle) Client() *http.Client { return h.client.client }

// Release returns the client to its stack unless it was tainted by an
// error or has reached MaxClientReuse, in which case it is discarded.
func (h *Handle) Release(failed bool) {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()

	h.client.useCount++
	if failed {
		h.client.tainted = true
	}
	if h.client.tainted || h.client.useCount >= MaxClientReuse {
		return // drop it: do not return to the stack
	}
	h.pool.stacks[h.key] = append(h.pool.stacks[h.key], h.client)
}

// Acquire returns a handle on an idle client for (zone, bucket), creating
// a fresh one on demand.
func (p *Pool) Acquire(zone, bucket string) (*Handle, error) {
	k := key(zone, bucket)

	p.mu.Lock()
	stack := p.stacks[k]
	if n := len(stack); n > 0 {
		top := stack[n-1]
		p.stacks[k] = stack[:n-1]
		p.mu.Unlock()
		return &Handle{pool: p, key: k, client: top}, nil
	}
	p.mu.Unlock()

	c, err := p.newClient()
	if err != nil {
		return nil, err
	}
	return &Handle{pool: p, key: k, client: &pooledClient{client: c}}, nil
}

func (p *Pool) newClient() (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
	}

	if p.proxyURL != "" {
		if err := configureProxy(transport, p.proxyURL); err != nil {
			return nil, err
		}
	}

	timeout := p.timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// configureProxy wires SOCKS5 or HTTP(S) proxying into transport,
// grounded on utils/http.go's configureProxy.
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Dial = dialer.Dial
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
	return nil
}
