// Package evalctx holds the per-evaluation state host functions need (spec
// component C8): a blocking HTTP client with verbose connection logging and
// a hermetic trust store, plus the host-side hash directory. Host functions
// receive it as a captured closure variable (strategy (b) of spec.md §9's
// "Evaluator host-data smuggling" note) rather than through a type-erased
// side channel, since Go closures make that the natural, idiomatic choice.
package evalctx

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptrace"
	"os"
	"time"

	"github.com/tuvix/tuvix/internal/storeconfig"
)

// Context is threaded to every host function call within one evaluation.
type Context struct {
	// HTTPClient is shared across every download() call in this evaluation.
	HTTPClient *http.Client

	// HashDir is the absolute host-side path of the recipe's hash directory
	// (STORE_ROOT/store/<fingerprint>) during the driver's unconfined pass,
	// and "/" in the inner builder, whose chroot root is the merged overlay.
	HashDir string

	// UnpackRoot is where unpack() creates its output directory: HashDir
	// during the driver's unconfined top-level evaluation, "/" once the
	// inner builder has chrooted (spec.md §4.3's unpack entry).
	UnpackRoot string

	// Output is the canonical install prefix get_output() returns: always
	// "/output", since it names a path inside the sandbox regardless of
	// which process is currently evaluating.
	Output string

	// Deps maps a dependency's recipe name to its absolute in-sandbox path
	// (spec.md §9's build-context paths map, resolved from the dependency
	// set rather than hardcoded — see DESIGN.md's Open Question decision).
	Deps map[string]string

	// Verbose enables httptrace-based connection logging on every HTTP
	// request (spec.md §3's "verbose connection logging" requirement).
	Verbose bool
}

// New constructs a Context for one recipe evaluation. unpackRoot is HashDir
// for the driver's unconfined pass and "/" for the inner builder's chrooted
// pass.
func New(hashDir, unpackRoot string, deps map[string]string, verbose bool) *Context {
	return &Context{
		HTTPClient: newHTTPClient(verbose),
		HashDir:    hashDir,
		UnpackRoot: unpackRoot,
		Output:     "/output",
		Deps:       deps,
		Verbose:    verbose,
	}
}

// newHTTPClient builds a blocking HTTP client configured the way spec.md
// §3's Evaluation Context requires: TLS against a bundled trust store and
// hostname resolution that never touches the host's system resolver
// libraries (cgo/nsswitch), so builds behave identically across hosts.
func newHTTPClient(verbose bool) *http.Client {
	resolver := &net.Resolver{
		PreferGo: true, // pure-Go resolver: never shells out to the system's name service switch
	}
	dialer := &net.Dialer{
		Timeout:  30 * time.Second,
		Resolver: resolver,
	}
	transport := &http.Transport{
		// Disabling compression keeps download()'s hash check honest: with
		// some web servers, Transport's default gunzip handling silently
		// changes the bytes a recipe thinks it downloaded (the teacher hits
		// exactly this in cmd/distri/build.go's downloadHTTP).
		DisableCompression: true,
		DialContext:        dialer.DialContext,
		TLSClientConfig:    &tls.Config{RootCAs: bundledRootCAs()},
	}
	return &http.Client{
		Transport: traceTransport{inner: transport, verbose: verbose},
	}
}

// bundledRootCAs loads a CA bundle from the store root rather than trusting
// whatever the host happens to have installed system-wide. If no bundle has
// been placed there, it falls back to the system pool so that an unconfigured
// store still works out of the box.
func bundledRootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	if data, err := os.ReadFile(storeconfig.CABundlePath()); err == nil {
		if pool.AppendCertsFromPEM(data) {
			return pool
		}
	}
	if sys, err := x509.SystemCertPool(); err == nil {
		return sys
	}
	return pool
}

// traceTransport wraps an http.RoundTripper with httptrace-based connection
// logging, enabled when Verbose is set.
type traceTransport struct {
	inner   http.RoundTripper
	verbose bool
}

func (t traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.verbose {
		return t.inner.RoundTrip(req)
	}
	trace := &httptrace.ClientTrace{
		GetConn:      func(hostPort string) { logTrace("get conn %s", hostPort) },
		GotConn:      func(info httptrace.GotConnInfo) { logTrace("got conn (reused=%v)", info.Reused) },
		DNSStart:     func(info httptrace.DNSStartInfo) { logTrace("dns start %s", info.Host) },
		DNSDone:      func(info httptrace.DNSDoneInfo) { logTrace("dns done %v (err=%v)", info.Addrs, info.Err) },
		ConnectStart: func(network, addr string) { logTrace("connect start %s %s", network, addr) },
		ConnectDone:  func(network, addr string, err error) { logTrace("connect done %s %s (err=%v)", network, addr, err) },
		TLSHandshakeStart: func() { logTrace("tls handshake start") },
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			logTrace("tls handshake done version=%x (err=%v)", state.Version, err)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) { logTrace("wrote request (err=%v)", info.Err) },
		GotFirstResponseByte: func() { logTrace("got first response byte") },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	return t.inner.RoundTrip(req)
}
