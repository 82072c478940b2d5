/*
Package ldap reads users and groups from an LDAP directory.

# Connection Management

A Client holds a single bound connection:

  - Explicit host, or DNS SRV discovery of domain controllers from a domain
  - none, ssl (ldaps://) or tls (StartTLS) encryption
  - Simple, anonymous or Kerberos (GSSAPI) binds
  - Automatic retry with exponential backoff for transient failures

# Reading

Reader runs the configured user and group queries through the simple paged
results control and returns raw records. Binary objectSid and objectGUID
values are decoded to their text forms so they can serve as unique or match
attributes.

# Error Handling

Failures are reported as LDAPError values:

  - Categorized errors (connection, authentication, validation, etc.)
  - Retryable error classification
  - Server message integration

# Example Usage

	client := ldap.NewClient(ldap.FromConfig(cfg.LDAP))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	users, err := ldap.NewReader(client, cfg.LDAP.Queries).ReadUsers(ctx)
*/
package ldap
