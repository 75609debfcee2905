// MCP transport handler using the official MCP Go SDK.
// Exposes cart and wishlist operations as MCP tools so shopping agents
// can manage collections through the same reconciler as the REST API.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"shopsync/internal/model"
	"shopsync/internal/session"
)

// === MCP Meta Types ===
// MCP calls carry credentials in the payload instead of HTTP headers:
// Authorization → meta.token, X-Guest-Session → meta.guest_session_id.

// MCPMeta identifies the session a tool call acts on.
type MCPMeta struct {
	Token          string `json:"token,omitempty" jsonschema:"bearer token for authenticated sessions"`
	GuestSessionID string `json:"guest_session_id,omitempty" jsonschema:"guest session ID for anonymous sessions"`
}

// === MCP Tool Input/Output Types ===

// ViewCollectionInput is the input schema for view_cart / view_wishlist.
type ViewCollectionInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"session credentials,required"`
}

// AddItemInput is the input schema for add_to_cart / add_to_wishlist.
type AddItemInput struct {
	Meta     MCPMeta       `json:"meta" jsonschema:"session credentials,required"`
	Product  model.Product `json:"product" jsonschema:"catalog snapshot of the product,required"`
	Quantity int           `json:"quantity,omitempty" jsonschema:"quantity to add (default 1)"`
}

// RemoveItemInput is the input schema for remove_from_cart / remove_from_wishlist.
type RemoveItemInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"session credentials,required"`
	ProductID string  `json:"product_id" jsonschema:"product to remove,required"`
}

// SetQuantityInput is the input schema for set_cart_quantity.
type SetQuantityInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"session credentials,required"`
	ProductID string  `json:"product_id" jsonschema:"product to update,required"`
	Quantity  int     `json:"quantity" jsonschema:"new quantity (0 removes),required"`
}

// CollectionOutput is the shared result schema for collection tools.
type CollectionOutput struct {
	Kind          model.Kind       `json:"kind"`
	Items         []model.LineItem `json:"items"`
	Notices       []model.Notice   `json:"notices"`
	Subtotal      string           `json:"subtotal"`
	TotalQuantity int              `json:"total_quantity"`

	// GuestSessionID echoes a freshly minted guest session; the agent
	// must pass it back on subsequent calls.
	GuestSessionID string `json:"guest_session_id,omitempty"`
}

// NewMCPServer creates an MCP server with collection tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shopsync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Shopsync - stock-aware cart and wishlist operations. " +
				"Adds are validated against live stock; read the notices array for " +
				"rejected or corrected actions.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Get the current cart with subtotal and item availability.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the cart. Rejected with a notice if the product is out of stock or the cart already holds the available quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_cart_quantity",
		Description: "Set a cart item's quantity, clamped to available stock. Quantity 0 removes the item.",
	}, h.mcpSetCartQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every item from the cart.",
	}, h.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "revalidate_cart",
		Description: "Reconcile the cart against live stock. Returns notices for removed or adjusted items.",
	}, h.mcpRevalidateCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_wishlist",
		Description: "Get the current wishlist with item availability.",
	}, h.mcpViewWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_wishlist",
		Description: "Add a product to the wishlist. Out-of-stock products are allowed; duplicates are ignored.",
	}, h.mcpAddToWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_wishlist",
		Description: "Remove a product from the wishlist.",
	}, h.mcpRemoveFromWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_wishlist",
		Description: "Remove every item from the wishlist.",
	}, h.mcpClearWishlist)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCollectionInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpView(ctx, model.KindCart, input.Meta)
}

func (h *Handler) mcpViewWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCollectionInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpView(ctx, model.KindWishlist, input.Meta)
}

func (h *Handler) mcpView(ctx context.Context, kind model.Kind, meta MCPMeta) (*mcp.CallToolResult, *CollectionOutput, error) {
	id, err := h.resolver.ResolveCredentials(ctx, meta.Token, meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, err := h.reconcilerFor(kind).Get(ctx, id.Session())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, nil, id), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpAdd(ctx, model.KindCart, input)
}

func (h *Handler) mcpAddToWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpAdd(ctx, model.KindWishlist, input)
}

func (h *Handler) mcpAdd(ctx context.Context, kind model.Kind, input AddItemInput) (*mcp.CallToolResult, *CollectionOutput, error) {
	if input.Product.ID == "" {
		return nil, nil, fmt.Errorf("product.id is required")
	}
	id, err := h.resolver.ResolveCredentials(ctx, input.Meta.Token, input.Meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, notices, err := h.reconcilerFor(kind).Add(ctx, id.Session(), input.Product, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, notices, id), nil
}

func (h *Handler) mcpSetCartQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetQuantityInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	id, err := h.resolver.ResolveCredentials(ctx, input.Meta.Token, input.Meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, err := h.carts.SetQuantity(ctx, id.Session(), input.ProductID, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, nil, id), nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpRemove(ctx, model.KindCart, input)
}

func (h *Handler) mcpRemoveFromWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpRemove(ctx, model.KindWishlist, input)
}

func (h *Handler) mcpRemove(ctx context.Context, kind model.Kind, input RemoveItemInput) (*mcp.CallToolResult, *CollectionOutput, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	id, err := h.resolver.ResolveCredentials(ctx, input.Meta.Token, input.Meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, err := h.reconcilerFor(kind).Remove(ctx, id.Session(), input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, nil, id), nil
}

func (h *Handler) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCollectionInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpClear(ctx, model.KindCart, input.Meta)
}

func (h *Handler) mcpClearWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCollectionInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	return h.mcpClear(ctx, model.KindWishlist, input.Meta)
}

func (h *Handler) mcpClear(ctx context.Context, kind model.Kind, meta MCPMeta) (*mcp.CallToolResult, *CollectionOutput, error) {
	id, err := h.resolver.ResolveCredentials(ctx, meta.Token, meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, err := h.reconcilerFor(kind).Clear(ctx, id.Session())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, nil, id), nil
}

func (h *Handler) mcpRevalidateCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCollectionInput,
) (*mcp.CallToolResult, *CollectionOutput, error) {
	id, err := h.resolver.ResolveCredentials(ctx, input.Meta.Token, input.Meta.GuestSessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	col, notices, err := h.carts.Revalidate(ctx, id.Session())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpOutput(col, notices, id), nil
}

// mcpOutput converts a collection to the tool result schema.
func (h *Handler) mcpOutput(col *model.Collection, notices []model.Notice, id session.Identity) *CollectionOutput {
	if notices == nil {
		notices = []model.Notice{}
	}
	out := &CollectionOutput{
		Kind:          col.Kind,
		Items:         col.Items,
		Notices:       notices,
		Subtotal:      col.Subtotal().StringFixed(2),
		TotalQuantity: col.TotalQuantity(),
	}
	if id.NewGuest {
		out.GuestSessionID = id.GuestID
	}
	return out
}

// mcpError converts reconciler errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", slog.String("error", err.Error()))
	return fmt.Errorf("internal error")
}
