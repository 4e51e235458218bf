package web

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/embedweb/ioweb/config"
	"github.com/embedweb/ioweb/tlsprofile"
	"github.com/embedweb/ioweb/worker"
)

// Listener owns one accepted endpoint from web.listen[]: a scheme, bind
// address, and (for "https") the TLS material to terminate it with. A Host
// runs one Listener per configured endpoint, all dispatching into the same
// route/session/action state.
type Listener struct {
	host   *Host
	scheme string
	addr   string
	tls    *tls.Config

	ln   net.Listener
	pool *worker.WorkerPool

	closeOnce sync.Once
}

// NewListeners parses every entry in cfg.Web.Listen ("http://0.0.0.0:80",
// "https://0.0.0.0:443") into a Listener bound to host. The TLS config
// section is shared by every https:// entry, matching a single-certificate
// embedded deployment: the config carries one tls.* block, not one per
// listener.
func NewListeners(host *Host, cfg *config.Config) ([]*Listener, error) {
	listeners := make([]*Listener, 0, len(cfg.Web.Listen))
	for _, raw := range cfg.Web.Listen {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("web: parse listen address %q: %w", raw, err)
		}
		l := &Listener{host: host, scheme: u.Scheme, addr: u.Host}
		if u.Scheme == "https" {
			tcfg, err := serverTLSConfig(cfg.TLS)
			if err != nil {
				return nil, fmt.Errorf("web: listen %q: %w", raw, err)
			}
			l.tls = tcfg
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

func serverTLSConfig(cfg config.TLS) (*tls.Config, error) {
	if cfg.Certificate == "" || cfg.Key == "" {
		return nil, fmt.Errorf("tls.certificate and tls.key are required for an https listener")
	}
	cert, err := tls.LoadX509KeyPair(cfg.Certificate, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("load certificate/key: %w", err)
	}
	tcfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		CipherSuites: tlsprofile.ResolveCipherSuites(cfg.Ciphers),
	}
	if cfg.Verify.Client {
		pool, err := loadClientCAPool(cfg.Authority)
		if err != nil {
			return nil, err
		}
		tcfg.ClientCAs = pool
		tcfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tcfg, nil
}

func loadClientCAPool(authorityPath string) (*x509.CertPool, error) {
	if authorityPath == "" {
		return nil, fmt.Errorf("tls.verify.client requires tls.authority")
	}
	pem, err := os.ReadFile(authorityPath) // #nosec G304 -- operator-provided config path
	if err != nil {
		return nil, fmt.Errorf("read tls.authority %q: %w", authorityPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls.authority %q contains no usable certificates", authorityPath)
	}
	return pool, nil
}

// reuseAddrControl sets SO_REUSEADDR on the listening socket before bind, so
// a restarted listener can rebind a port still draining TIME_WAIT
// connections from the previous process.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Listen binds the endpoint and starts accepting connections. workers bounds
// the number of connections served concurrently, matching
// web.limits.connections; the accept loop submits each accepted
// socket as a job to the pool rather than spawning an unbounded goroutine
// per connection, so a burst of clients queues instead of exhausting memory
// on a constrained device.
func (l *Listener) Listen(ctx context.Context, workers int) error {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("web: listen %s %s: %w", l.scheme, l.addr, err)
	}
	if l.tls != nil {
		ln = tls.NewListener(ln, l.tls)
	}
	l.ln = ln
	l.pool = worker.NewWorkerPool(workers)
	l.pool.Start()

	l.host.Log.Infof("web: listening on %s://%s", l.scheme, l.addr)
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// Wait for Close (already running above) to drain the pool.
				l.Close()
				return nil
			default:
				return fmt.Errorf("web: accept on %s: %w", l.addr, err)
			}
		}
		setNoDelay(conn)
		l.pool.Submit(func() {
			l.host.Serve(conn, l.scheme)
		})
	}
}

// setNoDelay disables Nagle's algorithm on the accepted socket so small
// response writes (status lines, SSE events) reach the client without the
// usual coalescing delay. TLS wraps the raw TCP conn, so unwrap it first.
func setNoDelay(conn net.Conn) {
	raw := conn
	if tc, ok := conn.(*tls.Conn); ok {
		raw = tc.NetConn()
	}
	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		return
	}
	sc, err := tcp.SyscallConn()
	if err != nil {
		return
	}
	sc.Control(func(fd uintptr) { //nolint:errcheck
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1) //nolint:errcheck
	})
}

// Close stops accepting new connections and shuts down the worker pool once
// in-flight connections finish.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		if l.ln != nil {
			l.ln.Close() //nolint:errcheck
		}
		if l.pool != nil {
			l.pool.Stop()
		}
	})
}
