package identity

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// RemoteGate asks the identity backend who the caller is by forwarding the
// caller's token to GET {baseURL}/auth/me.
type RemoteGate struct {
	baseURL string
	client  *http.Client
}

func NewRemoteGate(baseURL string, client *http.Client) *RemoteGate {
	return &RemoteGate{
		baseURL: baseURL,
		client:  client,
	}
}

func (g *RemoteGate) Authenticate(r *http.Request) (User, error) {
	token := ExtractToken(r)
	if token == "" {
		return User{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, g.baseURL+"/auth/me", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("identity request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return User{}, fmt.Errorf("%w: rejected by identity service", domain.ErrUnauthorized)
	default:
		return User{}, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode identity response: %w", err)
	}
	if user.ID == "" {
		return User{}, fmt.Errorf("%w: identity service returned no user", domain.ErrUnauthorized)
	}

	return user, nil
}
