package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

const (
	defaultLDAPPort  = 389
	defaultLDAPSPort = 636
)

// srvResolver is the subset of net.Resolver used for discovery.
type srvResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery handles DNS SRV record discovery for domain controllers.
type SRVDiscovery struct {
	resolver srvResolver
}

// NewSRVDiscovery creates a new SRV discovery instance.
func NewSRVDiscovery() *SRVDiscovery {
	return &SRVDiscovery{resolver: net.DefaultResolver}
}

// DiscoverServers discovers LDAP servers for a domain using SRV records.
// When ldaps is wanted _ldaps._tcp is tried first, then _ldap._tcp and
// finally _gc._tcp. Plain and StartTLS connections skip the ldaps records.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string, encryption Encryption) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()
	logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Starting server discovery for domain", map[string]any{
		"domain":     domain,
		"encryption": string(encryption),
	})

	type service struct {
		name   string
		useTLS bool
	}
	var services []service
	if encryption == EncryptionSSL {
		services = append(services, service{"_ldaps._tcp." + domain, true})
	}
	services = append(services,
		service{"_ldap._tcp." + domain, encryption == EncryptionSSL},
		service{"_gc._tcp." + domain, encryption == EncryptionSSL},
	)

	var servers []*ServerInfo
	for _, svc := range services {
		found, err := d.lookupSRV(ctx, svc.name, svc.useTLS)
		if err != nil {
			logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "SRV lookup failed, continuing to next service", map[string]any{
				"service": svc.name,
				"error":   err.Error(),
			})
			continue
		}
		servers = found
		break
	}

	if len(servers) == 0 {
		logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "No SRV records found, using fallback server", map[string]any{
			"domain": domain,
		})
		return []*ServerInfo{fallbackServer(domain, encryption)}, nil
	}

	sortServersByPriority(servers)

	logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Server discovery completed", map[string]any{
		"duration":     time.Since(start).String(),
		"server_count": len(servers),
	})
	return servers, nil
}

// lookupSRV performs SRV record lookup for a specific service.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service string, useTLS bool) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", service, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", service)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, srv := range records {
		port := int(srv.Port)
		// Global catalog SRV records advertise 3268, whose TLS twin is 3269.
		if useTLS && port == 3268 {
			port = 3269
		}
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     port,
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

func fallbackServer(host string, encryption Encryption) *ServerInfo {
	server := &ServerInfo{
		Host:   host,
		Port:   defaultLDAPPort,
		Weight: 100,
		Source: "fallback",
	}
	if encryption == EncryptionSSL {
		server.Port = defaultLDAPSPort
		server.UseTLS = true
	}
	return server
}

// sortServersByPriority sorts servers by priority and weight according to RFC 2782.
func sortServersByPriority(servers []*ServerInfo) {
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}

// ResolveServers returns the servers to try in order. An explicit host wins
// over discovery.
func ResolveServers(ctx context.Context, cfg *ConnectionConfig, discovery *SRVDiscovery) ([]*ServerInfo, error) {
	if cfg.Host != "" {
		server := fallbackServer(cfg.Host, cfg.Encryption)
		server.Source = "config"
		if cfg.Port != 0 {
			server.Port = cfg.Port
		}
		return []*ServerInfo{server}, ValidateServerInfo(server)
	}

	if cfg.Domain == "" {
		return nil, fmt.Errorf("either host or domain must be configured")
	}

	if discovery == nil {
		discovery = NewSRVDiscovery()
	}
	return discovery.DiscoverServers(ctx, cfg.Domain, cfg.Encryption)
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, fmt.Sprint(server.Port)))
}
