package ldap

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name          string
		operation     string
		err           error
		wantNil       bool
		wantCategory  ErrorCategory
		wantRetryable bool
		wantCode      uint16
	}{
		{
			name:      "nil error",
			operation: "search",
			err:       nil,
			wantNil:   true,
		},
		{
			name:         "invalid credentials",
			operation:    "bind",
			err:          ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantCategory: ErrorCategoryAuthentication,
			wantCode:     ldap.LDAPResultInvalidCredentials,
		},
		{
			name:          "server busy",
			operation:     "search",
			err:           ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")),
			wantCategory:  ErrorCategoryServer,
			wantRetryable: true,
			wantCode:      ldap.LDAPResultBusy,
		},
		{
			name:          "generic network error",
			operation:     "dial",
			err:           errors.New("dial tcp: connection refused"),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
		},
		{
			name:         "wrapped ldap error",
			operation:    "search",
			err:          fmt.Errorf("page 2: %w", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))),
			wantCategory: ErrorCategoryNotFound,
			wantCode:     ldap.LDAPResultNoSuchObject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError(tt.operation, tt.err)

			if tt.wantNil {
				if result != nil {
					t.Errorf("NewLDAPError() = %v, want nil", result)
				}
				return
			}

			if result == nil {
				t.Fatal("NewLDAPError() = nil, want non-nil")
			}
			if result.Operation != tt.operation {
				t.Errorf("Operation = %s, want %s", result.Operation, tt.operation)
			}
			if result.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", result.Category, tt.wantCategory)
			}
			if result.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", result.Retryable, tt.wantRetryable)
			}
			if result.LDAPCode != tt.wantCode {
				t.Errorf("LDAPCode = %d, want %d", result.LDAPCode, tt.wantCode)
			}
			if !errors.Is(result, tt.err) {
				t.Errorf("errors.Is(result, cause) = false")
			}
		})
	}
}

func TestLDAPError_Error(t *testing.T) {
	tests := []struct {
		name    string
		ldapErr *LDAPError
		want    string
	}{
		{
			name:    "basic error",
			ldapErr: &LDAPError{Operation: "search", Message: "timeout"},
			want:    "LDAP search failed - timeout",
		},
		{
			name: "error with code and server message",
			ldapErr: &LDAPError{
				Operation: "bind",
				LDAPCode:  49,
				Message:   "Invalid credentials",
				ServerMsg: "80090308: LdapErr: DSID-0C09042A",
			},
			want: "LDAP bind failed (code 49) - Invalid credentials - server: 80090308: LdapErr: DSID-0C09042A",
		},
		{
			name:    "error with DN",
			ldapErr: &LDAPError{Operation: "bind", Message: "denied", DN: "cn=sync,dc=example,dc=com"},
			want:    "LDAP bind failed - denied - DN: cn=sync,dc=example,dc=com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ldapErr.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"busy LDAP error", ldap.NewError(ldap.LDAPResultBusy, errors.New("server busy")), true},
		{"network LDAP error", ldap.NewError(ldap.ErrorNetwork, errors.New("reset")), true},
		{"invalid credentials LDAP error", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")), false},
		{"retryable wrapped", &LDAPError{Operation: "search", Retryable: true}, true},
		{"non-retryable wrapped", &LDAPError{Operation: "bind", Retryable: false}, false},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"validation error", errors.New("invalid syntax"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("search", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	existing := &LDAPError{Category: ErrorCategoryServer}
	wrapped := WrapError("search", fmt.Errorf("context: %w", existing))
	var ldapErr *LDAPError
	if !errors.As(wrapped, &ldapErr) || ldapErr != existing {
		t.Fatalf("WrapError() should keep the existing LDAPError, got %v", wrapped)
	}
	if existing.Operation != "search" {
		t.Errorf("Operation = %q, want search", existing.Operation)
	}

	plain := WrapError("dial", errors.New("boom"))
	if !strings.HasPrefix(plain.Error(), "LDAP dial failed") {
		t.Errorf("WrapError() = %q", plain.Error())
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryUnknown},
		{"raw ldap", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")), ErrorCategoryPermission},
		{"filter", ldap.NewError(ldap.LDAPResultFilterError, errors.New("bad filter")), ErrorCategoryValidation},
		{"kerberos", errors.New("kerberos: KDC_ERR_PREAUTH_FAILED"), ErrorCategoryAuthentication},
		{"other", errors.New("something odd"), ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCategory(tt.err); got != tt.want {
				t.Errorf("GetErrorCategory() = %s, want %s", got, tt.want)
			}
		})
	}

	if !IsAuthenticationError(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x"))) {
		t.Error("IsAuthenticationError() = false for invalid credentials")
	}
}
