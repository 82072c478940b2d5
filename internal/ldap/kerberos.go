package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// performKerberosAuth binds conn with GSSAPI.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	if err := prepareKerberosConfig(cfg); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	krb5conf, cleanup, err := resolveKrb5Conf(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	gssapiClient, err := createGSSAPIClient(ctx, cfg, krb5conf)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	logging.SubsystemDebug(ctx, logging.SubsystemKerberos, "Performing GSSAPI bind", map[string]any{
		"spn":       spn,
		"realm":     cfg.KerberosRealm,
		"principal": cfg.KerberosUser,
	})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client based on the configuration.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig, krb5conf string) (ldap.GSSAPIClient, error) {
	ccache := cfg.KerberosCCache
	if ccache == "" {
		ccache = getDefaultCCachePath()
	}
	if fileExists(ccache) {
		logging.SubsystemDebug(ctx, logging.SubsystemKerberos, "Using credential cache", map[string]any{"ccache": ccache})
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	keytab := cfg.KerberosKeytab
	if keytab == "" {
		keytab = getDefaultKeytabPath()
	}
	if fileExists(keytab) {
		logging.SubsystemDebug(ctx, logging.SubsystemKerberos, "Using keytab", map[string]any{"keytab": keytab})
		return gssapi.NewClientWithKeytab(cfg.KerberosUser, cfg.KerberosRealm, keytab, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if cfg.BindPassword != "" {
		logging.SubsystemDebug(ctx, logging.SubsystemKerberos, "Using password")
		return gssapi.NewClientWithPassword(cfg.KerberosUser, cfg.KerberosRealm, cfg.BindPassword, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// resolveKrb5Conf returns the krb5.conf path to use. When the configured file
// is missing a temporary one relying on DNS discovery of the KDCs is written.
func resolveKrb5Conf(ctx context.Context, cfg *ConnectionConfig) (string, func(), error) {
	path := cfg.KerberosConfig
	if path == "" {
		path = defaultKrb5Conf
	}
	if fileExists(path) {
		return path, func() {}, nil
	}

	logging.SubsystemWarn(ctx, logging.SubsystemKerberos, "krb5.conf not found, generating one with DNS KDC discovery", map[string]any{
		"path": path,
	})

	file, err := os.CreateTemp("", "krb5-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create runtime krb5.conf: %w", err)
	}
	cleanup := func() { _ = os.Remove(file.Name()) }

	if _, err := file.WriteString(generateRuntimeKrb5Conf(cfg)); err != nil {
		file.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}

	return file.Name(), cleanup, nil
}

// buildServicePrincipal constructs the LDAP service principal name.
// cfg.KerberosSPN overrides the ldap/<host> default.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + server.Host, nil
}

// prepareKerberosConfig validates and completes the Kerberos settings.
func prepareKerberosConfig(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	// Accept user@REALM as principal.
	if user, realm, ok := strings.Cut(cfg.KerberosUser, "@"); ok {
		cfg.KerberosUser = user
		if cfg.KerberosRealm == "" {
			cfg.KerberosRealm = realm
		}
	}

	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required")
	}
	cfg.KerberosRealm = strings.ToUpper(cfg.KerberosRealm)

	if cfg.KerberosUser == "" {
		return fmt.Errorf("kerberos principal is required")
	}

	return nil
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

// generateRuntimeKrb5Conf renders a krb5.conf that discovers KDCs through DNS.
func generateRuntimeKrb5Conf(cfg *ConnectionConfig) string {
	realm := strings.ToUpper(cfg.KerberosRealm)
	domain := strings.ToLower(cfg.KerberosRealm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false
    forwardable = true

[realms]
    %s = {
    }

[domain_realm]
    .%s = %s
    %s = %s
`,
		realm,
		realm,
		domain, realm,
		domain, realm,
	)
}
