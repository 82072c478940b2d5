package ldap

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// ErrorCategory groups failures by what the operator has to fix.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError is a directory failure annotated with its category and whether
// repeating the operation can help.
type LDAPError struct {
	Operation string
	Category  ErrorCategory
	LDAPCode  uint16
	Message   string
	ServerMsg string
	DN        string
	Retryable bool
	Cause     error
}

func (e *LDAPError) Error() string {
	head := "LDAP " + e.Operation + " failed"
	if e.LDAPCode > 0 {
		head += fmt.Sprintf(" (code %d)", e.LDAPCode)
	}

	parts := []string{head}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, "server: "+e.ServerMsg)
	}
	if e.DN != "" {
		parts = append(parts, "DN: "+e.DN)
	}
	return strings.Join(parts, " - ")
}

func (e *LDAPError) IsRetryable() bool {
	return e.Retryable
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

type resultCode struct {
	category  ErrorCategory
	retryable bool
	message   string
}

// resultCodes describes the result codes a sync run is likely to meet.
var resultCodes = map[uint16]resultCode{
	ldap.LDAPResultInvalidCredentials:          {ErrorCategoryAuthentication, false, "Invalid credentials"},
	ldap.LDAPResultInappropriateAuthentication: {ErrorCategoryAuthentication, false, "Inappropriate authentication method"},
	ldap.LDAPResultStrongAuthRequired:          {ErrorCategoryAuthentication, false, "Strong authentication required"},
	ldap.LDAPResultConfidentialityRequired:     {ErrorCategoryAuthentication, false, "Confidentiality required, try encryption ssl or tls"},

	ldap.LDAPResultInsufficientAccessRights: {ErrorCategoryPermission, false, "Insufficient access rights"},
	ldap.LDAPResultUnwillingToPerform:       {ErrorCategoryPermission, false, "Server is unwilling to perform the operation"},

	ldap.LDAPResultNoSuchObject:           {ErrorCategoryNotFound, false, "Search base does not exist"},
	ldap.LDAPResultNoSuchAttribute:        {ErrorCategoryNotFound, false, "Requested attribute does not exist"},
	ldap.LDAPResultUndefinedAttributeType: {ErrorCategoryNotFound, false, "Attribute type is not defined in the schema"},

	ldap.LDAPResultInvalidDNSyntax:        {ErrorCategoryValidation, false, "Invalid DN syntax"},
	ldap.LDAPResultFilterError:            {ErrorCategoryValidation, false, "Invalid search filter"},
	ldap.LDAPResultInvalidAttributeSyntax: {ErrorCategoryValidation, false, "Invalid attribute syntax"},

	ldap.LDAPResultServerDown:         {ErrorCategoryServer, true, "Server is down"},
	ldap.LDAPResultUnavailable:        {ErrorCategoryServer, true, "Server is unavailable"},
	ldap.LDAPResultBusy:               {ErrorCategoryServer, true, "Server is busy"},
	ldap.LDAPResultTimeLimitExceeded:  {ErrorCategoryServer, true, "Time limit exceeded"},
	ldap.LDAPResultAdminLimitExceeded: {ErrorCategoryServer, false, "Administrative limit exceeded, check the page size"},
	ldap.LDAPResultSizeLimitExceeded:  {ErrorCategoryServer, false, "Size limit exceeded"},
	ldap.LDAPResultOperationsError:    {ErrorCategoryServer, false, "Operations error"},
	ldap.LDAPResultProtocolError:      {ErrorCategoryConnection, false, "Protocol error"},
	ldap.LDAPResultConnectError:       {ErrorCategoryConnection, true, "Could not connect to the server"},
	ldap.ErrorNetwork:                 {ErrorCategoryConnection, true, "Network error"},
}

func lookupCode(code uint16) resultCode {
	if rc, ok := resultCodes[code]; ok {
		return rc
	}
	return resultCode{ErrorCategoryUnknown, false, fmt.Sprintf("LDAP error (code %d)", code)}
}

// Substrings of transport and Kerberos errors that carry no result code.
var (
	connectionPatterns     = []string{"connection", "network", "timeout", "broken pipe"}
	authenticationPatterns = []string{"authentication", "credentials", "kerberos"}
	retryablePatterns      = []string{
		"connection reset",
		"connection refused",
		"timeout",
		"broken pipe",
		"temporary failure",
		"server temporarily unavailable",
	}
)

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func classifyGeneric(err error) (ErrorCategory, bool) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryConnection, true
	}

	msg := strings.ToLower(err.Error())
	retryable := containsAny(msg, retryablePatterns)
	switch {
	case containsAny(msg, connectionPatterns):
		return ErrorCategoryConnection, retryable
	case containsAny(msg, authenticationPatterns):
		return ErrorCategoryAuthentication, retryable
	default:
		return ErrorCategoryUnknown, retryable
	}
}

// NewLDAPError classifies err. It returns nil for a nil err.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	e := &LDAPError{Operation: operation, Cause: err}

	var result *ldap.Error
	if errors.As(err, &result) {
		rc := lookupCode(result.ResultCode)
		e.LDAPCode = result.ResultCode
		e.Category = rc.category
		e.Retryable = rc.retryable
		e.Message = rc.message
		if result.Err != nil {
			e.ServerMsg = result.Err.Error()
		}
		return e
	}

	e.Category, e.Retryable = classifyGeneric(err)
	e.Message = err.Error()
	return e
}

// WrapError classifies err unless it already carries an LDAPError, in which
// case only a missing operation name is filled in.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var existing *LDAPError
	if errors.As(err, &existing) {
		if existing.Operation == "" {
			existing.Operation = operation
		}
		return err
	}
	return NewLDAPError(operation, err)
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var existing *LDAPError
	if errors.As(err, &existing) {
		return existing.Retryable
	}
	return NewLDAPError("", err).Retryable
}

func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}
	var existing *LDAPError
	if errors.As(err, &existing) {
		return existing.Category
	}
	return NewLDAPError("", err).Category
}

func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// LogLDAPError logs err with its classification at error level.
func LogLDAPError(ctx context.Context, operation string, err error, fields map[string]any) {
	if err == nil {
		return
	}

	logFields := map[string]any{
		"operation": operation,
		"error":     err.Error(),
		"category":  string(GetErrorCategory(err)),
	}
	maps.Copy(logFields, fields)

	var existing *LDAPError
	if errors.As(err, &existing) {
		logFields["ldap_code"] = existing.LDAPCode
		logFields["retryable"] = existing.Retryable
		if existing.DN != "" {
			logFields["dn"] = existing.DN
		}
	}

	logging.SubsystemError(ctx, logging.SubsystemLDAP, "LDAP operation failed", logging.SanitizeFields(logFields))
}
