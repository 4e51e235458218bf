package tlsprofile

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestDialerAutoHandshakes(t *testing.T) {
	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		conn.Read(buf)
	}()

	dial := Dialer(Config{ServerName: "localhost", InsecureSkipVerify: true})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := dial(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	<-serverDone
}

func TestResolveCipherIDsIgnoresUnknown(t *testing.T) {
	ids := resolveCipherIDs([]string{"TLS_AES_128_GCM_SHA256", "NOT_A_CIPHER"})
	if len(ids) != 1 || ids[0] != tls.TLS_AES_128_GCM_SHA256 {
		t.Fatalf("got %v", ids)
	}
}

func TestResolveCipherIDsEmpty(t *testing.T) {
	if ids := resolveCipherIDs(nil); ids != nil {
		t.Fatalf("expected nil, got %v", ids)
	}
}

func TestProfileHelloIDMapping(t *testing.T) {
	if Auto.helloID() == Modern111.helloID() {
		t.Fatalf("Auto and Modern111 should resolve to distinct ClientHelloIDs")
	}
}
