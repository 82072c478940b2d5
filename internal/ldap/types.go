package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
)

// Encryption selects how the connection is secured.
type Encryption string

const (
	EncryptionNone     Encryption = config.EncryptionNone
	EncryptionSSL      Encryption = config.EncryptionSSL // ldaps://
	EncryptionStartTLS Encryption = config.EncryptionTLS // ldap:// upgraded with StartTLS
)

// ConnectionConfig holds configuration for the directory connection.
type ConnectionConfig struct {
	// Connection settings
	Host       string        // Explicit server; wins over Domain
	Port       int           // Server port
	Domain     string        // Domain for SRV discovery
	Encryption Encryption    // none, ssl or tls
	Timeout    time.Duration // Connection and request timeout
	Debug      bool          // Dump LDAP packets

	// Authentication settings
	BindDN         string // Bind DN for simple bind; empty means anonymous
	BindPassword   string // Password for simple bind or Kerberos
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosUser   string // Kerberos principal without realm
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosConfig string // Path to krb5.conf
	KerberosCCache string // Path to credential cache
	KerberosSPN    string // Service principal override

	// TLS settings
	InsecureSkipVerify bool
	CACertFile         string

	// Search settings
	PageSize uint32

	// Retry settings
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Encryption:     EncryptionNone,
		Timeout:        30 * time.Second,
		PageSize:       500,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// FromConfig builds a connection configuration from the ldap section of the
// configuration file.
func FromConfig(c config.LDAPConfig) *ConnectionConfig {
	cfg := DefaultConfig()
	s := c.Server

	cfg.Host = s.Host
	cfg.Port = s.Port
	cfg.Domain = s.Domain
	cfg.Encryption = Encryption(s.Encryption)
	cfg.Debug = c.Debug
	cfg.BindDN = s.BindDN
	cfg.BindPassword = s.BindPassword
	cfg.InsecureSkipVerify = s.InsecureSkipVerify
	cfg.CACertFile = s.CACertFile
	cfg.KerberosRealm = s.Kerberos.Realm
	cfg.KerberosUser = s.Kerberos.Principal
	cfg.KerberosKeytab = s.Kerberos.Keytab
	cfg.KerberosConfig = s.Kerberos.Config
	cfg.KerberosSPN = s.Kerberos.SPN

	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	if s.MaxRetries >= 0 {
		cfg.MaxRetries = s.MaxRetries
	}

	return cfg
}

// TLSConfig builds the TLS configuration used for ldaps and StartTLS.
func (c *ConnectionConfig) TLSConfig(serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}

	if c.CACertFile != "" {
		pem, err := os.ReadFile(c.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "fallback"
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	TimeLimit  time.Duration
}

// SearchResult contains search results.
type SearchResult struct {
	Entries []*ldap.Entry
	Pages   int
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodAnonymous AuthMethod = iota
	AuthMethodSimpleBind
	AuthMethodKerberos
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	if c.KerberosRealm != "" {
		return AuthMethodKerberos
	}
	if c.BindDN != "" {
		return AuthMethodSimpleBind
	}
	return AuthMethodAnonymous
}
