package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	permissionsPerPage = 100
	maxPermissionPages = 10
)

// PermissionLookup returns a user's current permissions from the identity provider
type PermissionLookup interface {
	UserPermissions(ctx context.Context, userID string) ([]string, error)
}

// ManagementClient talks to the Auth0 Management API with a machine-to-machine
// token. The oauth2 token source caches and renews the token.
type ManagementClient struct {
	baseURL    string
	apiID      string
	httpClient *http.Client
}

// NewManagementClient builds a client for {issuer}api/v2/. Only permissions
// granted on apiAudience are reported, so a same-named permission from
// another API in the tenant does not count. base carries timeouts and
// transport for both the token and the API calls.
func NewManagementClient(issuer, apiAudience, clientID, clientSecret string, base *http.Client) *ManagementClient {
	if base == nil {
		base = http.DefaultClient
	}
	audience := issuer + "api/v2/"
	cfg := clientcredentials.Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       issuer + "oauth/token",
		EndpointParams: url.Values{"audience": {audience}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cfg.Client(ctx)
	httpClient.Timeout = base.Timeout

	return &ManagementClient{baseURL: audience, apiID: apiAudience, httpClient: httpClient}
}

type managementPermission struct {
	PermissionName           string `json:"permission_name"`
	ResourceServerIdentifier string `json:"resource_server_identifier"`
}

// UserPermissions returns the user's permissions on the configured API,
// following pagination until a short page is returned
func (m *ManagementClient) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	var perms []string

	for page := 0; page < maxPermissionPages; page++ {
		batch, err := m.permissionsPage(ctx, userID, page)
		if err != nil {
			return nil, err
		}
		for _, p := range batch {
			if p.ResourceServerIdentifier == m.apiID {
				perms = append(perms, p.PermissionName)
			}
		}
		if len(batch) < permissionsPerPage {
			break
		}
	}

	return perms, nil
}

func (m *ManagementClient) permissionsPage(ctx context.Context, userID string, page int) ([]managementPermission, error) {
	q := url.Values{
		"per_page": {strconv.Itoa(permissionsPerPage)},
		"page":     {strconv.Itoa(page)},
	}
	endpoint := m.baseURL + "users/" + url.PathEscape(userID) + "/permissions?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build permissions request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("permissions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("permissions request returned status %d", resp.StatusCode)
	}

	var entries []managementPermission
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode permissions: %w", err)
	}
	return entries, nil
}
