// Package gitlab implements the reconciliation platform over the GitLab REST API.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

// Client adapts a GitLab API client to reconcile.Platform.
type Client struct {
	api *gitlab.Client
	url string
}

var _ reconcile.Platform = (*Client)(nil)

// New creates a client for one configured instance. With debug set, HTTP
// client activity is logged through the gitlab subsystem logger.
func New(ctx context.Context, instance config.InstanceConfig, debug bool, opts ...gitlab.ClientOptionFunc) (*Client, error) {
	if strings.TrimSpace(instance.URL) == "" {
		return nil, &reconcile.ConfigurationError{Err: errors.New("gitlab instance url is empty")}
	}
	if strings.TrimSpace(instance.Token) == "" {
		return nil, &reconcile.ConfigurationError{Err: fmt.Errorf("gitlab instance %s has no token", instance.URL)}
	}

	options := []gitlab.ClientOptionFunc{gitlab.WithBaseURL(instance.URL)}
	if debug {
		options = append(options, gitlab.WithCustomLeveledLogger(logging.FromContext(ctx).Named(logging.SubsystemGitLab)))
	}
	options = append(options, opts...)

	api, err := gitlab.NewClient(instance.Token, options...)
	if err != nil {
		return nil, &reconcile.ConfigurationError{Err: fmt.Errorf("failed to create gitlab client for %s: %w", instance.URL, err)}
	}

	logging.SubsystemDebug(ctx, logging.SubsystemGitLab, "GitLab client created", map[string]any{
		"url": api.BaseURL().String(),
	})

	return &Client{api: api, url: instance.URL}, nil
}

// WithRequestRate limits the client to perSecond requests. A non-positive
// rate keeps the client's header-driven limiter.
func WithRequestRate(perSecond float64) gitlab.ClientOptionFunc {
	if perSecond <= 0 {
		return func(*gitlab.Client) error { return nil }
	}
	return gitlab.WithCustomLimiter(rate.NewLimiter(rate.Limit(perSecond), 1))
}

// URL returns the configured instance url.
func (c *Client) URL() string {
	return c.url
}

// wrap classifies an API failure. Authentication failures and transport
// errors become connection errors; a taken email becomes ErrEmailTaken.
func (c *Client) wrap(operation string, err error) error {
	if err == nil {
		return nil
	}

	var response *gitlab.ErrorResponse
	if !errors.As(err, &response) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return &reconcile.ConnectionError{Target: c.url, Err: fmt.Errorf("%s: %w", operation, err)}
	}

	status := 0
	if response.Response != nil {
		status = response.Response.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized:
		return &reconcile.ConnectionError{Target: c.url, Err: fmt.Errorf("%s: %w", operation, err)}
	case isEmailTaken(response):
		return fmt.Errorf("%s: %w: %w", operation, reconcile.ErrEmailTaken, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

func isEmailTaken(response *gitlab.ErrorResponse) bool {
	msg := strings.ToLower(response.Message)
	return strings.Contains(msg, "email") && strings.Contains(msg, "has already been taken")
}

func listOptions(page, perPage int) gitlab.ListOptions {
	return gitlab.ListOptions{Page: page, PerPage: perPage}
}

// total returns the item count reported by a list response, falling back to
// the number of items returned when the header is absent.
func total(resp *gitlab.Response, returned int) int {
	if resp != nil && resp.TotalItems > returned {
		return resp.TotalItems
	}
	return returned
}
