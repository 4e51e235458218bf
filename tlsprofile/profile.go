// Package tlsprofile configures the TLS ClientHello the URL client presents
// when dialing a peer. Some embedded-device gateways terminate TLS on
// constrained hardware that only accepts a narrow cipher/extension order;
// this package lets an operator pin that order instead of always emitting
// the one Go's crypto/tls happens to produce.
package tlsprofile

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// Profile names a known ClientHello shape. Named profiles are resolved to a
// utls.ClientHelloID and dialed through uTLS; Auto bypasses uTLS and dials
// with the standard crypto/tls client.
type Profile string

const (
	// Auto uses crypto/tls's own ClientHello, optionally restricted to
	// Config.Ciphers.
	Auto Profile = ""
	// Modern111 uses uTLS's current Chrome ClientHello
	// (utls.HelloChrome_Auto).
	Modern111 Profile = "modern"
	// Compat10 uses uTLS's current Firefox ClientHello
	// (utls.HelloFirefox_Auto); it is not limited to older TLS versions.
	Compat10 Profile = "compat"
)

func (p Profile) helloID() utls.ClientHelloID {
	switch p {
	case Modern111:
		return utls.HelloChrome_Auto
	case Compat10:
		return utls.HelloFirefox_Auto
	default:
		return utls.HelloCustom
	}
}

// Config controls how Dial negotiates TLS.
type Config struct {
	Profile            Profile
	ServerName         string
	InsecureSkipVerify bool
	// Ciphers, when non-empty, restricts the standard-library fallback path
	// (Profile == Auto with no uTLS spec) to this explicit cipher list, by
	// name (e.g. "TLS_AES_128_GCM_SHA256"). Unknown names are ignored.
	Ciphers []string
}

// Dialer returns a dial function suitable for wiring into a raw-socket URL
// client: it establishes TCP, then performs the TLS handshake according to
// cfg, returning the established net.Conn.
func Dialer(cfg Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("tlsprofile: parse addr %q: %w", addr, err)
		}
		sni := host
		if cfg.ServerName != "" {
			sni = cfg.ServerName
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("tlsprofile: dial %s: %w", addr, err)
		}

		if cfg.Profile == Auto {
			tcfg := &tls.Config{
				ServerName:         sni,
				InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- operator controlled
				CipherSuites:       resolveCipherIDs(cfg.Ciphers),
			}
			tlsConn := tls.Client(rawConn, tcfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				_ = rawConn.Close()
				return nil, fmt.Errorf("tlsprofile: handshake with %s: %w", addr, err)
			}
			return tlsConn, nil
		}

		uCfg := &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- operator controlled
		}
		uConn := utls.UClient(rawConn, uCfg, cfg.Profile.helloID())
		if spec, ok := namedSpec(cfg.Profile); ok {
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = rawConn.Close()
				return nil, fmt.Errorf("tlsprofile: apply preset %q: %w", cfg.Profile, err)
			}
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("tlsprofile: handshake with %s: %w", addr, err)
		}
		return uConn, nil
	}
}

// namedSpec returns the ClientHelloSpec for p when p names a profile whose
// cipher/extension order uTLS ships a canned spec for. Auto and unknown
// profiles report ok=false, leaving uTLS's own negotiated default in place.
func namedSpec(p Profile) (utls.ClientHelloSpec, bool) {
	id := p.helloID()
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, false
	}
	return spec, true
}

var cipherByName = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":                tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":                tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256":          tls.TLS_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

func resolveCipherIDs(names []string) []uint16 {
	return ResolveCipherSuites(names)
}

// ResolveCipherSuites maps cipher suite names (e.g. "TLS_AES_128_GCM_SHA256")
// to their tls package IDs, for both the dial-side profile above and a
// listener restricting which suites it will negotiate. Unknown names are
// dropped rather than rejected, so a typo narrows the set instead of failing
// startup.
func ResolveCipherSuites(names []string) []uint16 {
	if len(names) == 0 {
		return nil
	}
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		if id, ok := cipherByName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
