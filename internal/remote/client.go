// Package remote talks to the commerce backend's per-user collection
// service (cart and wishlist endpoints). It is the authoritative store
// for authenticated identities.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopsync/internal/model"
	"shopsync/internal/transport"
)

// Mutation actions accepted by the collection service.
const (
	ActionAdd            = "add"
	ActionRemove         = "remove"
	ActionUpdateQuantity = "updateQuantity"
	ActionClear          = "clear"
)

// Mutation is one collection operation to apply remotely.
type Mutation struct {
	Action    string          `json:"action"`
	Item      *model.LineItem `json:"item,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
}

// AddMutation mirrors an insert or increment of item.
func AddMutation(item model.LineItem) Mutation {
	return Mutation{Action: ActionAdd, Item: &item}
}

// RemoveMutation mirrors a removal.
func RemoveMutation(productID string) Mutation {
	return Mutation{Action: ActionRemove, ProductID: productID}
}

// QuantityMutation mirrors a quantity change.
func QuantityMutation(productID string, quantity int) Mutation {
	return Mutation{Action: ActionUpdateQuantity, ProductID: productID, Quantity: quantity}
}

// ClearMutation mirrors emptying the collection.
func ClearMutation() Mutation {
	return Mutation{Action: ActionClear}
}

// Config holds remote collection client configuration.
type Config struct {
	// CommerceURL is the base URL of the commerce backend.
	CommerceURL string

	// HTTPClient overrides the default upstream client (used in tests).
	HTTPClient *http.Client
}

// Client calls the remote collection service. All calls carry the
// user's bearer token; the backend scopes collections by identity.
type Client struct {
	httpClient  *http.Client
	commerceURL string
}

// NewClient creates a remote collection client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.CommerceURL == "" {
		return nil, fmt.Errorf("commerce URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewClient(15 * time.Second)
	}
	return &Client{
		httpClient:  httpClient,
		commerceURL: strings.TrimSuffix(cfg.CommerceURL, "/"),
	}, nil
}

// wireItem is the collection service's line item shape. Prices travel
// as decimal strings.
type wireItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
}

type fetchResponse struct {
	Items []wireItem `json:"items"`
}

// Fetch retrieves the authenticated identity's collection.
// Returns ErrRemoteRead (wrapped) on any failure; callers decide whether
// that is fatal (it is not, during merge).
func (c *Client) Fetch(ctx context.Context, token string, kind model.Kind) (*model.Collection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(kind), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRemoteRead, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s service returned %d", model.ErrRemoteRead, kind, resp.StatusCode)
	}

	var decoded fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", model.ErrRemoteRead, err)
	}

	col := model.NewCollection(kind)
	for _, wi := range decoded.Items {
		qty := wi.Quantity
		if qty < 1 {
			qty = 1
		}
		col.Items = append(col.Items, model.LineItem{
			ProductID: wi.ProductID,
			Name:      wi.Name,
			UnitPrice: model.ParsePrice(wi.Price),
			Image:     wi.Image,
			Quantity:  qty,
			// Stock unknown until the next revalidation pass confirms it.
			InStock: true,
		})
	}
	return col, nil
}

// Apply sends one mutation to the collection service.
// Returns ErrRemoteWrite (wrapped) on failure; the caller logs and moves
// on, local state stays authoritative.
func (c *Client) Apply(ctx context.Context, token string, kind model.Kind, m Mutation) error {
	payload := struct {
		Action string    `json:"action"`
		Item   *wireItem `json:"item,omitempty"`
	}{Action: m.Action}

	switch m.Action {
	case ActionAdd:
		payload.Item = &wireItem{
			ProductID: m.Item.ProductID,
			Name:      m.Item.Name,
			Price:     m.Item.UnitPrice.String(),
			Image:     m.Item.Image,
			Quantity:  m.Item.Quantity,
		}
	case ActionRemove:
		payload.Item = &wireItem{ProductID: m.ProductID}
	case ActionUpdateQuantity:
		payload.Item = &wireItem{ProductID: m.ProductID, Quantity: m.Quantity}
	case ActionClear:
		// No item payload.
	default:
		return fmt.Errorf("unknown mutation action %q", m.Action)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mutation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(kind), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrRemoteWrite, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s service returned %d", model.ErrRemoteWrite, kind, resp.StatusCode)
	}
	return nil
}

func (c *Client) endpoint(kind model.Kind) string {
	return c.commerceURL + "/api/" + string(kind)
}
