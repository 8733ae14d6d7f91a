// Package graph fetches a user's transitive group memberships from a
// Microsoft-Graph-shaped directory API and renders the search authorization
// filter derived from them.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultEndpoint is the first page of the transitive-membership listing,
// restricted to the id field.
const DefaultEndpoint = "https://graph.microsoft.com/v1.0/me/transitiveMemberOf?$select=id"

// Group is one directory object the user is a member of.
type Group struct {
	ID string `json:"id"`
}

// page is one response body of the paginated listing.
type page struct {
	Value    []Group `json:"value"`
	NextLink string  `json:"@odata.nextLink"`
}

// Client calls the directory API with the caller's bearer token.
type Client struct {
	endpoint   string
	column     string
	httpClient *http.Client
}

// NewClient constructs a Client. endpoint may be empty to use
// DefaultEndpoint; column is the search index column holding permitted group
// ids (taken from configuration, not validated).
func NewClient(endpoint, column string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		column:     column,
		httpClient: &http.Client{},
	}
}

// FetchUserGroups walks the paginated membership listing and returns the
// groups in page-arrival order. Any failure (non-200 status, transport or
// parse error) is logged and truncates the walk: the pages collected so far
// are returned and later pages are dropped. It never returns an error.
func (c *Client) FetchUserGroups(ctx context.Context, userToken string) []Group {
	groups := []Group{}
	endpoint := c.endpoint
	for endpoint != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			slog.Error("exception fetching user groups", "error", err)
			return groups
		}
		req.Header.Set("Authorization", "bearer "+userToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			slog.Error("exception fetching user groups", "error", err)
			return groups
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			slog.Error("exception fetching user groups", "error", err)
			return groups
		}
		if resp.StatusCode != http.StatusOK {
			slog.Error("error fetching user groups", "status", resp.StatusCode, "body", string(body))
			return groups
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			slog.Error("exception fetching user groups", "error", err)
			return groups
		}
		groups = append(groups, p.Value...)
		endpoint = p.NextLink
	}
	return groups
}

// GenerateFilterString renders the search filter restricting results to
// documents whose permitted-groups column intersects the user's memberships.
// With no groups the filter is still rendered, with an empty id list, and
// matches nothing.
func (c *Client) GenerateFilterString(ctx context.Context, userToken string) string {
	userGroups := c.FetchUserGroups(ctx, userToken)
	if len(userGroups) == 0 {
		slog.Debug("no user groups found")
	}

	ids := make([]string, 0, len(userGroups))
	for _, g := range userGroups {
		ids = append(ids, g.ID)
	}
	return fmt.Sprintf("%s/any(g:search.in(g, '%s'))", c.column, strings.Join(ids, ", "))
}
