// shopsyncctl is a CLI tool for exercising shopsync collection flows.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	shopsyncctl view -server URL -kind cart [-guest ID | -token TOK]
//	shopsyncctl add -server URL -kind cart -product ID -name NAME -price P [-qty N]
//	shopsyncctl qty -server URL -product ID -n N
//	shopsyncctl remove -server URL -kind cart -product ID
//	shopsyncctl clear -server URL -kind cart
//	shopsyncctl revalidate -server URL
//	shopsyncctl merge -server URL -token TOK -guest ID
//	shopsyncctl logout -server URL [-guest ID | -token TOK]
//
// Examples:
//
//	GUEST=$(shopsyncctl add -server http://localhost:8080 -kind cart -product 60 -name Widget -price 19.99 -q)
//	shopsyncctl view -server http://localhost:8080 -kind cart -guest "$GUEST"
//	shopsyncctl revalidate -server http://localhost:8080 -guest "$GUEST"
//	shopsyncctl merge -server http://localhost:8080 -token "$TOKEN" -guest "$GUEST"
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	guestID   string
	token     string
	quiet     bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen = "", "", ""
	colorYellow, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "add":
		runAdd(args)
	case "qty":
		runQty(args)
	case "remove":
		runRemove(args)
	case "clear":
		runClear(args)
	case "revalidate":
		runRevalidate(args)
	case "merge":
		runMerge(args)
	case "logout":
		runLogout(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shopsyncctl - shopsync collection flow test tool

Usage:
  shopsyncctl <command> [options]

Commands:
  view        Show the current cart or wishlist
  add         Add a product to a collection
  qty         Set a cart item's quantity
  remove      Remove a product from a collection
  clear       Empty a collection
  revalidate  Reconcile the cart against live stock
  merge       Merge a guest session into a logged-in user
  logout      Discard session collections

Examples:
  # Add to a fresh guest session and capture the session ID
  GUEST=$(shopsyncctl add -server http://localhost:8080 -kind cart -product 60 -name Widget -price 19.99 -q)

  # Inspect the cart
  shopsyncctl view -server http://localhost:8080 -kind cart -guest "$GUEST"

  # Revalidate after stock changes
  shopsyncctl revalidate -server http://localhost:8080 -guest "$GUEST"

  # Fold the guest cart into a logged-in account
  shopsyncctl merge -server http://localhost:8080 -token "$TOKEN" -guest "$GUEST"

Run 'shopsyncctl <command> -h' for command-specific options.
`)
}

// registerGlobalFlags adds the flags every command accepts.
func registerGlobalFlags(fs *flag.FlagSet) {
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "shopsync server URL")
	fs.StringVar(&guestID, "guest", "", "guest session ID")
	fs.StringVar(&token, "token", "", "bearer token for authenticated sessions")
	fs.BoolVar(&quiet, "q", false, "quiet: print only the guest session ID")
}

// =============================================================================
// COMMANDS
// =============================================================================

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	registerGlobalFlags(fs)
	kind := fs.String("kind", "cart", "collection kind: cart or wishlist")
	fs.Parse(args)

	resp := request("GET", "/"+*kind, nil)
	printCollection(resp)
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	registerGlobalFlags(fs)
	kind := fs.String("kind", "cart", "collection kind: cart or wishlist")
	productID := fs.String("product", "", "product ID (required)")
	name := fs.String("name", "", "product name")
	price := fs.String("price", "0", "unit price")
	stock := fs.Int("stock", 99, "stock snapshot")
	qty := fs.Int("qty", 1, "quantity to add")
	fs.Parse(args)

	if *productID == "" {
		fatal("-product is required")
	}
	body := map[string]interface{}{
		"product": map[string]interface{}{
			"id":       *productID,
			"name":     *name,
			"price":    *price,
			"stock":    *stock,
			"in_stock": *stock > 0,
		},
		"quantity": *qty,
	}
	resp := request("POST", "/"+*kind+"/items", body)
	printCollection(resp)
}

func runQty(args []string) {
	fs := flag.NewFlagSet("qty", flag.ExitOnError)
	registerGlobalFlags(fs)
	productID := fs.String("product", "", "product ID (required)")
	n := fs.Int("n", 1, "new quantity (0 removes)")
	fs.Parse(args)

	if *productID == "" {
		fatal("-product is required")
	}
	resp := request("PUT", "/cart/items/"+*productID, map[string]int{"quantity": *n})
	printCollection(resp)
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	registerGlobalFlags(fs)
	kind := fs.String("kind", "cart", "collection kind: cart or wishlist")
	productID := fs.String("product", "", "product ID (required)")
	fs.Parse(args)

	if *productID == "" {
		fatal("-product is required")
	}
	resp := request("DELETE", "/"+*kind+"/items/"+*productID, nil)
	printCollection(resp)
}

func runClear(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	registerGlobalFlags(fs)
	kind := fs.String("kind", "cart", "collection kind: cart or wishlist")
	fs.Parse(args)

	resp := request("DELETE", "/"+*kind, nil)
	printCollection(resp)
}

func runRevalidate(args []string) {
	fs := flag.NewFlagSet("revalidate", flag.ExitOnError)
	registerGlobalFlags(fs)
	fs.Parse(args)

	resp := request("POST", "/cart/revalidate", nil)
	printCollection(resp)
}

func runMerge(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	registerGlobalFlags(fs)
	fs.Parse(args)

	if token == "" || guestID == "" {
		fatal("merge requires both -token and -guest")
	}
	resp := request("POST", "/session/merge", map[string]string{"guest_session_id": guestID})

	var merged struct {
		Cart     collectionView `json:"cart"`
		Wishlist collectionView `json:"wishlist"`
	}
	if err := json.Unmarshal(resp.body, &merged); err != nil {
		fatal("decoding merge response: %v", err)
	}
	fmt.Printf("%sCart%s\n", colorBold, colorReset)
	printCollectionView(merged.Cart)
	fmt.Printf("%sWishlist%s\n", colorBold, colorReset)
	printCollectionView(merged.Wishlist)
}

func runLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	registerGlobalFlags(fs)
	fs.Parse(args)

	request("POST", "/session/logout", nil)
	if !quiet {
		fmt.Printf("%ssession cleared%s\n", colorGreen, colorReset)
	}
}

// =============================================================================
// HTTP + OUTPUT
// =============================================================================

type response struct {
	status  int
	body    []byte
	guestID string
}

func request(method, path string, body interface{}) response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fatal("encoding request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		fatal("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if guestID != "" {
		req.Header.Set("X-Guest-Session", guestID)
	}

	resp, err := client.Do(req)
	if err != nil {
		fatal("%v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("reading response: %v", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			fatal("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		fatal("server returned %d: %s", resp.StatusCode, string(data))
	}

	return response{
		status:  resp.StatusCode,
		body:    data,
		guestID: resp.Header.Get("X-Guest-Session"),
	}
}

type collectionView struct {
	Kind  string `json:"kind"`
	Items []struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		UnitPrice string `json:"unit_price"`
		Quantity  int    `json:"quantity"`
		Stock     int    `json:"stock"`
		InStock   bool   `json:"in_stock"`
	} `json:"items"`
	Notices []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"notices"`
	Subtotal      string `json:"subtotal"`
	TotalQuantity int    `json:"total_quantity"`
}

func printCollection(resp response) {
	if resp.guestID != "" {
		if quiet {
			fmt.Println(resp.guestID)
			return
		}
		fmt.Printf("%sguest session:%s %s\n", colorGray, colorReset, resp.guestID)
	}
	if quiet {
		return
	}

	var view collectionView
	if err := json.Unmarshal(resp.body, &view); err != nil {
		fatal("decoding response: %v", err)
	}
	printCollectionView(view)
}

func printCollectionView(view collectionView) {
	if len(view.Items) == 0 {
		fmt.Printf("  %s(empty)%s\n", colorGray, colorReset)
	}
	for _, item := range view.Items {
		availability := fmt.Sprintf("%sin stock (%d)%s", colorGreen, item.Stock, colorReset)
		if !item.InStock {
			availability = colorRed + "out of stock" + colorReset
		}
		fmt.Printf("  %s%s%s x%d @ %s  %s[%s]%s %s\n",
			colorBold, item.Name, colorReset,
			item.Quantity, item.UnitPrice,
			colorCyan, item.ProductID, colorReset,
			availability,
		)
	}
	for _, notice := range view.Notices {
		fmt.Printf("  %s! %s: %s%s\n", colorYellow, notice.Code, notice.Message, colorReset)
	}
	if view.Kind == "cart" {
		fmt.Printf("  %ssubtotal:%s %s (%d items)\n", colorGray, colorReset, view.Subtotal, view.TotalQuantity)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%serror:%s "+format+"\n", append([]interface{}{colorRed, colorReset}, args...)...)
	os.Exit(1)
}
