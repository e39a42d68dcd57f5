package httpx

import "golang.org/x/crypto/acme/autocert"

// TLS holds the automatic Let's Encrypt certificate setup.
type TLS struct {
	CertManager *autocert.Manager
}

// NewTLSConfig makes a certificate manager for the given host; an
// empty host accepts any domain the server is reached by.
func NewTLSConfig(host string) *TLS {
	tls := TLS{
		CertManager: &autocert.Manager{
			Prompt: autocert.AcceptTOS,
			Cache:  autocert.DirCache("assets/cache"),
		},
	}
	if host != "" {
		tls.CertManager.HostPolicy = autocert.HostWhitelist(host)
	}
	return &tls
}
