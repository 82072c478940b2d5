// Package config loads and validates the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config.yml"

// Encryption modes for the directory connection.
const (
	EncryptionNone = "none"
	EncryptionSSL  = "ssl"
	EncryptionTLS  = "tls"
)

// Config is the root of the configuration file.
type Config struct {
	LDAP    LDAPConfig    `yaml:"ldap"`
	GitLab  GitLabConfig  `yaml:"gitlab"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LDAPConfig struct {
	Debug bool `yaml:"debug"`
	// Accepted for compatibility with existing files. Referrals are never chased.
	WinCompatibilityMode bool          `yaml:"winCompatibilityMode"`
	Server               ServerConfig  `yaml:"server"`
	Queries              QueriesConfig `yaml:"queries"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Version      int    `yaml:"version" default:"3"`
	Encryption   string `yaml:"encryption" default:"none"`
	BindDN       string `yaml:"bindDn"`
	BindPassword string `yaml:"bindPassword"`

	// Domain enables DNS SRV discovery when Host is empty.
	Domain             string         `yaml:"domain"`
	Timeout            time.Duration  `yaml:"timeout" default:"30s"`
	InsecureSkipVerify bool           `yaml:"insecureSkipVerify"`
	CACertFile         string         `yaml:"caCertFile"`
	MaxRetries         int            `yaml:"maxRetries" default:"3"`
	Kerberos           KerberosConfig `yaml:"kerberos"`
}

// KerberosConfig switches the bind to GSSAPI when Realm is set.
type KerberosConfig struct {
	Realm     string `yaml:"realm"`
	Principal string `yaml:"principal"`
	Keytab    string `yaml:"keytab"`
	Config    string `yaml:"config" default:"/etc/krb5.conf"`
	SPN       string `yaml:"spn"`
}

type QueriesConfig struct {
	BaseDN               string `yaml:"baseDn"`
	UserDN               string `yaml:"userDn"`
	UserFilter           string `yaml:"userFilter"`
	UserUniqueAttribute  string `yaml:"userUniqueAttribute"`
	UserMatchAttribute   string `yaml:"userMatchAttribute"`
	UserNameAttribute    string `yaml:"userNameAttribute"`
	UserEmailAttribute   string `yaml:"userEmailAttribute"`
	GroupDN              string `yaml:"groupDn"`
	GroupFilter          string `yaml:"groupFilter"`
	GroupUniqueAttribute string `yaml:"groupUniqueAttribute"`
	GroupMemberAttribute string `yaml:"groupMemberAttribute"`
}

// UserSearchBase returns the subtree users are searched in.
func (q QueriesConfig) UserSearchBase() string {
	return joinDN(q.UserDN, q.BaseDN)
}

// GroupSearchBase returns the subtree groups are searched in.
func (q QueriesConfig) GroupSearchBase() string {
	return joinDN(q.GroupDN, q.BaseDN)
}

func joinDN(rdn, base string) string {
	if rdn == "" {
		return base
	}
	return rdn + "," + base
}

type GitLabConfig struct {
	Debug     bool                      `yaml:"debug"`
	Options   OptionsConfig             `yaml:"options"`
	Instances map[string]InstanceConfig `yaml:"instances"`
}

type OptionsConfig struct {
	UserNamesToIgnore          []string      `yaml:"userNamesToIgnore"`
	GroupNamesToIgnore         []string      `yaml:"groupNamesToIgnore"`
	CreateEmptyGroups          bool          `yaml:"createEmptyGroups"`
	DeleteExtraGroups          bool          `yaml:"deleteExtraGroups"`
	NewMemberAccessLevel       int           `yaml:"newMemberAccessLevel" default:"30"`
	GroupNamesOfAdministrators []string      `yaml:"groupNamesOfAdministrators"`
	GroupNamesOfExternal       []string      `yaml:"groupNamesOfExternal"`
	APICooldown                time.Duration `yaml:"apiCooldown" default:"100ms"`
	PageSize                   int           `yaml:"pageSize" default:"100"`
	// RequestRate caps API requests per second, reads included. Zero leaves
	// pacing to the server's RateLimit headers.
	RequestRate                float64       `yaml:"requestRate"`
}

type InstanceConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	LDAPServerName string `yaml:"ldapServerName" default:"ldapmain"`
}

type MetricsConfig struct {
	// Textfile is a node-exporter textfile collector path.
	Textfile    string `yaml:"textfile"`
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job" default:"gitlab_ldap_sync"`
}

// Problems collects validation findings. Warnings never block a run.
type Problems struct {
	Warnings []string
	Errors   []string
}

func (p *Problems) warn(format string, args ...any) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

func (p *Problems) fail(format string, args ...any) {
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Err joins all errors, or returns nil when there are none.
func (p *Problems) Err() error {
	if len(p.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(p.Errors))
	for _, e := range p.Errors {
		errs = append(errs, errors.New(e))
	}
	return errors.Join(errs...)
}

// Load reads, parses and validates the file at path. Problems are returned
// even when err is non-nil so callers can log the warnings.
func Load(path string) (*Config, *Problems, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return Parse(data)
}

// Parse decodes data, applies defaults and validates the result.
func Parse(data []byte) (*Config, *Problems, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	problems := cfg.Validate()

	if err := defaults.Set(cfg); err != nil {
		return nil, problems, fmt.Errorf("failed to apply configuration defaults: %w", err)
	}
	for name, instance := range cfg.GitLab.Instances {
		if err := defaults.Set(&instance); err != nil {
			return nil, problems, fmt.Errorf("failed to apply defaults for instance %s: %w", name, err)
		}
		cfg.GitLab.Instances[name] = instance
	}

	return cfg, problems, problems.Err()
}

// Validate checks required settings and fills the values that are derived
// from other settings. Settings with a static default are left for defaults.Set.
func (c *Config) Validate() *Problems {
	p := &Problems{}

	c.validateServer(p)
	c.validateQueries(p)
	c.validateOptions(p)
	c.validateInstances(p)

	return p
}

func (c *Config) validateServer(p *Problems) {
	s := &c.LDAP.Server

	s.Host = strings.TrimSpace(s.Host)
	s.Domain = strings.TrimSpace(s.Domain)
	if s.Host == "" && s.Domain == "" {
		p.fail("ldap->server->host not specified.")
	}

	if s.Port == 0 {
		p.warn("ldap->server->port not specified. (It will be determined by the encryption setting.)")
	} else if s.Port < 1 || s.Port > 65535 {
		p.fail("ldap->server->port out of range. (Must be 1-65535.)")
	}

	switch {
	case s.Version == 0:
		p.warn("ldap->server->version not specified. (Assuming 3.)")
	case s.Version < 1 || s.Version > 3:
		p.fail("ldap->server->version out of range. (Must be 1-3.)")
	case s.Version != 3:
		p.fail("ldap->server->version %d is not supported. (Only 3 is.)", s.Version)
	}

	s.Encryption = strings.ToLower(strings.TrimSpace(s.Encryption))
	if s.Encryption == "" {
		p.warn("ldap->server->encryption not specified. (Assuming none.)")
		s.Encryption = EncryptionNone
	}
	switch s.Encryption {
	case EncryptionNone, EncryptionTLS:
		if s.Port == 0 {
			s.Port = 389
		}
	case EncryptionSSL:
		if s.Port == 0 {
			s.Port = 636
		}
	default:
		p.fail("ldap->server->encryption invalid. (Must be \"none\", \"ssl\", or \"tls\".)")
	}

	s.BindDN = strings.TrimSpace(s.BindDN)
	s.BindPassword = expandEnv(s.BindPassword)
	switch {
	case s.Kerberos.Realm != "":
	case s.BindDN == "":
		p.warn("ldap->server->bindDn not specified. (Assuming anonymous access.)")
	case s.BindPassword == "":
		p.warn("ldap->server->bindPassword not specified. (Must be specified for non-anonymous access.)")
	}
}

func (c *Config) validateQueries(p *Problems) {
	q := &c.LDAP.Queries

	required := []struct {
		name  string
		value *string
	}{
		{"baseDn", &q.BaseDN},
		{"userFilter", &q.UserFilter},
		{"userUniqueAttribute", &q.UserUniqueAttribute},
		{"userNameAttribute", &q.UserNameAttribute},
		{"userEmailAttribute", &q.UserEmailAttribute},
		{"groupFilter", &q.GroupFilter},
		{"groupUniqueAttribute", &q.GroupUniqueAttribute},
		{"groupMemberAttribute", &q.GroupMemberAttribute},
	}
	for _, r := range required {
		*r.value = strings.TrimSpace(*r.value)
		if *r.value == "" {
			p.fail("ldap->queries->%s not specified.", r.name)
		}
	}

	q.UserDN = strings.TrimSpace(q.UserDN)
	q.GroupDN = strings.TrimSpace(q.GroupDN)

	if endsWithFold(q.UserDN, q.BaseDN) {
		p.warn("ldap->queries->userDn wrongly ends with ldap->queries->baseDn, this could cause user objects to not be found.")
	}
	if endsWithFold(q.GroupDN, q.BaseDN) {
		p.warn("ldap->queries->groupDn wrongly ends with ldap->queries->baseDn, this could cause group objects to not be found.")
	}

	q.UserMatchAttribute = strings.TrimSpace(q.UserMatchAttribute)
	if q.UserMatchAttribute == "" {
		p.warn("ldap->queries->userMatchAttribute not specified. (Assuming == userUniqueAttribute.)")
		q.UserMatchAttribute = q.UserUniqueAttribute
	}
}

func (c *Config) validateOptions(p *Problems) {
	o := &c.GitLab.Options

	lists := []struct {
		name   string
		values []string
	}{
		{"userNamesToIgnore", o.UserNamesToIgnore},
		{"groupNamesToIgnore", o.GroupNamesToIgnore},
		{"groupNamesOfAdministrators", o.GroupNamesOfAdministrators},
		{"groupNamesOfExternal", o.GroupNamesOfExternal},
	}
	for _, l := range lists {
		for i, v := range l.values {
			l.values[i] = strings.TrimSpace(v)
			if l.values[i] == "" {
				p.fail("gitlab->options->%s[%d] not specified.", l.name, i)
			}
		}
	}

	switch o.NewMemberAccessLevel {
	case 0:
		p.warn("gitlab->options->newMemberAccessLevel not specified. (Assuming 30.)")
	case 5, 10, 15, 20, 30, 40, 50:
	default:
		p.fail("gitlab->options->newMemberAccessLevel %d is not a valid access level.", o.NewMemberAccessLevel)
	}

	if o.APICooldown < 0 {
		p.fail("gitlab->options->apiCooldown must not be negative.")
	}
	if o.RequestRate < 0 {
		p.fail("gitlab->options->requestRate must not be negative.")
	}
	if o.PageSize < 0 || o.PageSize > 100 {
		p.fail("gitlab->options->pageSize out of range. (Must be 1-100.)")
	}
}

func (c *Config) validateInstances(p *Problems) {
	if len(c.GitLab.Instances) == 0 {
		p.fail("gitlab->instances missing.")
		return
	}

	for _, name := range c.InstanceNames() {
		instance := c.GitLab.Instances[name]

		instance.URL = strings.TrimSpace(instance.URL)
		if instance.URL == "" {
			p.fail("gitlab->instances->%s->url not specified.", name)
		}

		instance.Token = strings.TrimSpace(expandEnv(instance.Token))
		if instance.Token == "" {
			p.fail("gitlab->instances->%s->token not specified.", name)
		}

		c.GitLab.Instances[name] = instance
	}
}

// InstanceNames returns configured instance names in sorted order.
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.GitLab.Instances))
	for name := range c.GitLab.Instances {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// expandEnv resolves ${VAR} references so secrets can stay out of the file.
func expandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

func endsWithFold(s, suffix string) bool {
	if s == "" || suffix == "" || len(s) < len(suffix) {
		return false
	}
	return strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
