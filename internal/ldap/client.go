package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// maxPagesPerSearch stops runaway paged searches.
const maxPagesPerSearch = 10000

// searcher is the part of *ldap.Conn used by paged searches.
type searcher interface {
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Client is a single bound directory connection.
type Client struct {
	config    *ConnectionConfig
	discovery *SRVDiscovery

	conn   *ldap.Conn
	search searcher
	server *ServerInfo
}

// NewClient creates a client. No connection is made until Connect.
func NewClient(config *ConnectionConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config:    config,
		discovery: NewSRVDiscovery(),
	}
}

// Server returns the server the client is connected to.
func (c *Client) Server() *ServerInfo {
	return c.server
}

// Connect dials the first reachable server and binds.
func (c *Client) Connect(ctx context.Context) error {
	return logging.LogOperation(ctx, logging.SubsystemLDAP, "connect", map[string]any{
		"host":        c.config.Host,
		"domain":      c.config.Domain,
		"encryption":  string(c.config.Encryption),
		"auth_method": c.config.GetAuthMethod().String(),
	}, func() error {
		servers, err := ResolveServers(ctx, c.config, c.discovery)
		if err != nil {
			return NewLDAPError("discover", err)
		}

		var lastErr error
		for _, server := range servers {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := c.withRetry(ctx, func() error {
				return c.connectServer(ctx, server)
			})
			if err == nil {
				return nil
			}

			lastErr = err
			LogLDAPError(ctx, "connect", err, map[string]any{"server": ServerInfoToURL(server)})

			// Wrong credentials will not improve on another server.
			if IsAuthenticationError(err) {
				return err
			}
		}

		return lastErr
	})
}

func (c *Client) connectServer(ctx context.Context, server *ServerInfo) error {
	url := ServerInfoToURL(server)

	var opts []ldap.DialOpt
	if server.UseTLS {
		tlsConfig, err := c.config.TLSConfig(server.Host)
		if err != nil {
			return err
		}
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Dialing server", map[string]any{
		"url":    url,
		"source": server.Source,
	})

	conn, err := ldap.DialURL(url, opts...)
	if err != nil {
		return NewLDAPError("dial", err)
	}

	if c.config.Encryption == EncryptionStartTLS && !server.UseTLS {
		tlsConfig, err := c.config.TLSConfig(server.Host)
		if err == nil {
			err = conn.StartTLS(tlsConfig)
		}
		if err != nil {
			conn.Close()
			return NewLDAPError("start_tls", err)
		}
	}

	if c.config.Timeout > 0 {
		conn.SetTimeout(c.config.Timeout)
	}
	if c.config.Debug {
		conn.Debug.Enable(true)
	}

	if err := c.bind(ctx, conn, server); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.search = conn
	c.server = server

	logging.SubsystemInfo(ctx, logging.SubsystemLDAP, "Connected to directory", map[string]any{
		"url":         url,
		"auth_method": c.config.GetAuthMethod().String(),
	})
	return nil
}

func (c *Client) bind(ctx context.Context, conn *ldap.Conn, server *ServerInfo) error {
	var err error

	switch c.config.GetAuthMethod() {
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, conn, c.config, server)
	case AuthMethodSimpleBind:
		if c.config.BindPassword == "" {
			err = conn.UnauthenticatedBind(c.config.BindDN)
		} else {
			err = conn.Bind(c.config.BindDN, c.config.BindPassword)
		}
	default:
		err = conn.UnauthenticatedBind("")
	}

	if err != nil {
		ldapErr := NewLDAPError("bind", err)
		if c.config.GetAuthMethod() == AuthMethodKerberos {
			ldapErr.Category = ErrorCategoryAuthentication
			ldapErr.Retryable = false
		}
		ldapErr.DN = c.config.BindDN
		return ldapErr
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.Close()
	c.conn = nil
	c.search = nil
	return nil
}

// SearchWithPaging performs an LDAP search with the simple paged results control.
func (c *Client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}
	if c.search == nil {
		return nil, errors.New("not connected")
	}

	start := time.Now()
	fields := map[string]any{
		"base_dn": req.BaseDN,
		"filter":  req.Filter,
		"scope":   req.Scope.String(),
	}

	logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Starting paged search", fields)

	pageSize := c.config.PageSize
	if pageSize == 0 {
		pageSize = 500
	}
	pagingControl := ldap.NewControlPaging(pageSize)

	result := &SearchResult{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if result.Pages >= maxPagesPerSearch {
			return nil, fmt.Errorf("paged search exceeded %d pages", maxPagesPerSearch)
		}
		result.Pages++

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			ldap.NeverDerefAliases,
			0, // No size limit when paging
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			[]ldap.Control{pagingControl},
		)

		var page *ldap.SearchResult
		err := c.withRetry(ctx, func() error {
			var searchErr error
			page, searchErr = c.search.Search(ldapReq)
			return searchErr
		})
		if err != nil {
			fields["page_number"] = result.Pages
			LogLDAPError(ctx, "paged_search", err, fields)
			return nil, fmt.Errorf("paged search failed: %w", WrapError("search", err))
		}

		result.Entries = append(result.Entries, page.Entries...)

		logging.SubsystemTrace(ctx, logging.SubsystemLDAP, "Completed search page", map[string]any{
			"page_number":     result.Pages,
			"entries_in_page": len(page.Entries),
			"total_entries":   len(result.Entries),
		})

		responseControl, ok := ldap.FindControl(page.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(responseControl.Cookie) == 0 {
			break
		}
		pagingControl.SetCookie(responseControl.Cookie)
	}

	fields["total_entries"] = len(result.Entries)
	fields["pages_processed"] = result.Pages
	fields["duration_ms"] = time.Since(start).Milliseconds()
	logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Paged search completed", fields)

	return result, nil
}

// withRetry executes an operation with retry logic.
func (c *Client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.SubsystemDebug(ctx, logging.SubsystemLDAP, "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	logging.SubsystemError(ctx, logging.SubsystemLDAP, "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return lastErr
}
