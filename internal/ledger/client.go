package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
)

// IClient defines the read-only queries this system makes against the ledger.
// It never writes: access passes and caretaker capabilities are created by the
// on-chain contract, this client only observes them.
type IClient interface {
	HasAccessPass(ctx context.Context, address, listingID string) (*models.PaymentStatus, error)
	IsCaretaker(ctx context.Context, address string) (bool, error)
	ListCaretakerListings(ctx context.Context, address string) ([]map[string]interface{}, error)
}

// client implements IClient over Sui JSON-RPC.
type client struct {
	cfg        *config.Config
	rpcURL     string
	httpClient *http.Client
}

// NewClient creates a ledger client for the configured RPC endpoint.
func NewClient(cfg *config.Config) IClient {
	return &client{
		cfg:        cfg,
		rpcURL:     cfg.SuiRpcURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type moveContent struct {
	DataType string                 `json:"dataType"`
	Type     string                 `json:"type"`
	Fields   map[string]interface{} `json:"fields"`
}

type objectData struct {
	ObjectID string       `json:"objectId"`
	Type     string       `json:"type"`
	Content  *moveContent `json:"content"`
}

type ownedObject struct {
	Data *objectData `json:"data"`
}

type ownedObjectsPage struct {
	Data        []ownedObject   `json:"data"`
	HasNextPage bool            `json:"hasNextPage"`
	NextCursor  json.RawMessage `json:"nextCursor"`
}

type objectResponse struct {
	Data *objectData `json:"data"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to contact ledger RPC: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ledger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger RPC returned status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse ledger response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledger RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// ownedObjects fetches every object owned by the address, following pagination.
// Cost is linear in the number of owned objects; call volume is low enough that
// no caching happens at this layer.
func (c *client) ownedObjects(ctx context.Context, address string) ([]objectData, error) {
	query := map[string]interface{}{
		"options": map[string]bool{"showType": true, "showContent": true},
	}

	var objects []objectData
	var cursor json.RawMessage
	for {
		params := []interface{}{address, query, cursor, nil}
		var page ownedObjectsPage
		if err := c.call(ctx, "suix_getOwnedObjects", params, &page); err != nil {
			return nil, err
		}
		for _, obj := range page.Data {
			if obj.Data != nil {
				objects = append(objects, *obj.Data)
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return objects, nil
		}
		cursor = page.NextCursor
	}
}

// fetchContent loads full decoded content for one object.
func (c *client) fetchContent(ctx context.Context, objectID string) (*moveContent, error) {
	params := []interface{}{objectID, map[string]bool{"showContent": true, "showType": true}}
	var resp objectResponse
	if err := c.call(ctx, "sui_getObject", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Content == nil {
		return nil, fmt.Errorf("object %s has no decoded content", objectID)
	}
	return resp.Data.Content, nil
}

// Field names under which access-pass objects have been observed to reference
// their listing. Contract versions disagree, so all are probed.
var listingRefFields = []string{"listing_id", "house_id", "property_id"}

// matchesListing compares the embedded listing reference against listingID in
// both its raw-string and object-reference forms. Two embedding conventions
// exist upstream; keep comparing both until the contract settles on one.
func matchesListing(fields map[string]interface{}, listingID string) bool {
	for _, key := range listingRefFields {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v == listingID {
				return true
			}
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok && id == listingID {
				return true
			}
		}
	}
	return false
}

// HasAccessPass reports whether the address holds an access pass for the
// listing. The first matching pass wins; no match is not an error.
func (c *client) HasAccessPass(ctx context.Context, address, listingID string) (*models.PaymentStatus, error) {
	objects, err := c.ownedObjects(ctx, address)
	if err != nil {
		return nil, &models.LedgerQueryError{Method: "HasAccessPass", Err: err}
	}

	for _, obj := range objects {
		if !strings.Contains(obj.Type, c.cfg.AccessPassMarker) {
			continue
		}

		content := obj.Content
		if content == nil {
			content, err = c.fetchContent(ctx, obj.ObjectID)
			if err != nil {
				return nil, &models.LedgerQueryError{Method: "HasAccessPass", Err: err}
			}
		}

		if matchesListing(content.Fields, listingID) {
			status := &models.PaymentStatus{
				HasPaid:   true,
				PassID:    obj.ObjectID,
				Timestamp: time.Now().UTC(),
			}
			if amount, ok := content.Fields["amount"].(string); ok {
				status.Amount = amount
			}
			return status, nil
		}
	}

	return &models.PaymentStatus{HasPaid: false, Timestamp: time.Now().UTC()}, nil
}

// IsCaretaker reports whether the address holds a caretaker capability.
func (c *client) IsCaretaker(ctx context.Context, address string) (bool, error) {
	objects, err := c.ownedObjects(ctx, address)
	if err != nil {
		return false, &models.LedgerQueryError{Method: "IsCaretaker", Err: err}
	}
	for _, obj := range objects {
		if strings.Contains(obj.Type, c.cfg.CaretakerMarker) {
			return true, nil
		}
	}
	return false, nil
}

// ListCaretakerListings collects the decoded content of every on-chain listing
// object the address owns.
func (c *client) ListCaretakerListings(ctx context.Context, address string) ([]map[string]interface{}, error) {
	objects, err := c.ownedObjects(ctx, address)
	if err != nil {
		return nil, &models.LedgerQueryError{Method: "ListCaretakerListings", Err: err}
	}

	var listings []map[string]interface{}
	for _, obj := range objects {
		if !strings.Contains(obj.Type, c.cfg.ListingMarker) {
			continue
		}
		content := obj.Content
		if content == nil {
			content, err = c.fetchContent(ctx, obj.ObjectID)
			if err != nil {
				log.Printf("Skipping ledger listing %s: %v", obj.ObjectID, err)
				continue
			}
		}
		entry := map[string]interface{}{"objectId": obj.ObjectID, "type": obj.Type}
		for k, v := range content.Fields {
			entry[k] = v
		}
		listings = append(listings, entry)
	}
	return listings, nil
}
