package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// HTTPMirror writes cart mutations to the storefront cart API on behalf of
// one signed-in shopper.
type HTTPMirror struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPMirror(baseURL, token string, client *http.Client) *HTTPMirror {
	return &HTTPMirror{
		baseURL: baseURL,
		token:   token,
		client:  client,
	}
}

func (m *HTTPMirror) Add(ctx context.Context, productID string, quantity int) error {
	return m.do(ctx, http.MethodPost, "/cart/items", addItemRequest{ProductID: productID, Quantity: quantity}, nil)
}

func (m *HTTPMirror) Update(ctx context.Context, productID string, quantity int) error {
	return m.do(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(productID), updateItemRequest{Quantity: quantity}, nil)
}

func (m *HTTPMirror) Remove(ctx context.Context, productID string) error {
	return m.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, nil)
}

func (m *HTTPMirror) Clear(ctx context.Context) error {
	return m.do(ctx, http.MethodDelete, "/cart", nil, nil)
}

func (m *HTTPMirror) Fetch(ctx context.Context) ([]domain.CartLine, error) {
	var resp cartResponse
	if err := m.do(ctx, http.MethodGet, "/cart", nil, &resp); err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(resp.Items))
	for _, item := range resp.Items {
		lines = append(lines, domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines, nil
}

func (m *HTTPMirror) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: cart service returned status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode cart response: %w", err)
		}
	}

	return nil
}
