package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
)

func ledgerTestConfig(rpcURL string) *config.Config {
	return &config.Config{
		SuiRpcURL:        rpcURL,
		AccessPassMarker: "::payments::AccessPass",
		CaretakerMarker:  "::registry::CaretakerCap",
		ListingMarker:    "::listings::House",
	}
}

// fakeRPC serves canned suix_getOwnedObjects pages and sui_getObject results.
type fakeRPC struct {
	pages      []map[string]interface{}
	objects    map[string]map[string]interface{}
	pageIndex  int
	callCounts map[string]int
}

func (f *fakeRPC) handler(t *testing.T) http.HandlerFunc {
	if f.callCounts == nil {
		f.callCounts = map[string]int{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.callCounts[req.Method]++

		switch req.Method {
		case "suix_getOwnedObjects":
			page := f.pages[f.pageIndex]
			if f.pageIndex < len(f.pages)-1 {
				f.pageIndex++
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": page})
		case "sui_getObject":
			var objectID string
			require.NoError(t, json.Unmarshal(req.Params[0], &objectID))
			result, ok := f.objects[objectID]
			require.True(t, ok, "unexpected sui_getObject for %s", objectID)
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result})
		default:
			t.Errorf("unexpected RPC method %s", req.Method)
		}
	}
}

func makeOwned(objectID, objType string, fields map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"objectId": objectID,
		"type":     objType,
	}
	if fields != nil {
		data["content"] = map[string]interface{}{
			"dataType": "moveObject",
			"type":     objType,
			"fields":   fields,
		}
	}
	return map[string]interface{}{"data": data}
}

func TestClient_HasAccessPass_Match(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data": []interface{}{
				makeOwned("0xcoin", "0x2::coin::Coin<0x2::sui::SUI>", nil),
				makeOwned("0xpass", "0xpkg::payments::AccessPass", map[string]interface{}{
					"listing_id": "listing-1",
					"amount":     "1000000",
				}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	require.NoError(t, err)
	assert.True(t, status.HasPaid)
	assert.Equal(t, "0xpass", status.PassID)
	assert.Equal(t, "1000000", status.Amount)
}

func TestClient_HasAccessPass_ObjectReferenceForm(t *testing.T) {
	// The listing reference arrives as {"id": "..."} instead of a raw string.
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data": []interface{}{
				makeOwned("0xpass", "0xpkg::payments::AccessPass", map[string]interface{}{
					"house_id": map[string]interface{}{"id": "listing-1"},
				}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	require.NoError(t, err)
	assert.True(t, status.HasPaid)
}

func TestClient_HasAccessPass_WrongListing(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data": []interface{}{
				makeOwned("0xpass", "0xpkg::payments::AccessPass", map[string]interface{}{
					"listing_id": "some-other-listing",
				}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	require.NoError(t, err)
	// A pass for a different listing is not payment for this one.
	assert.False(t, status.HasPaid)
}

func TestClient_HasAccessPass_Pagination(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data":        []interface{}{makeOwned("0xcoin", "0x2::coin::Coin<0x2::sui::SUI>", nil)},
			"hasNextPage": true,
			"nextCursor":  "cursor-1",
		},
		{
			"data": []interface{}{
				makeOwned("0xpass", "0xpkg::payments::AccessPass", map[string]interface{}{
					"listing_id": "listing-1",
				}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	require.NoError(t, err)
	assert.True(t, status.HasPaid)
	assert.Equal(t, 2, rpc.callCounts["suix_getOwnedObjects"])
}

func TestClient_HasAccessPass_FetchesMissingContent(t *testing.T) {
	// The owned-objects page carries no content; the client must fetch it.
	rpc := &fakeRPC{
		pages: []map[string]interface{}{
			{
				"data":        []interface{}{makeOwned("0xpass", "0xpkg::payments::AccessPass", nil)},
				"hasNextPage": false,
			},
		},
		objects: map[string]map[string]interface{}{
			"0xpass": {
				"data": map[string]interface{}{
					"objectId": "0xpass",
					"type":     "0xpkg::payments::AccessPass",
					"content": map[string]interface{}{
						"dataType": "moveObject",
						"type":     "0xpkg::payments::AccessPass",
						"fields":   map[string]interface{}{"listing_id": "listing-1"},
					},
				},
			},
		},
	}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	require.NoError(t, err)
	assert.True(t, status.HasPaid)
	assert.Equal(t, 1, rpc.callCounts["sui_getObject"])
}

func TestClient_HasAccessPass_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]interface{}{"code": -32000, "message": "node overloaded"},
		})
	}))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	assert.Nil(t, status)
	var ledgerErr *models.LedgerQueryError
	assert.ErrorAs(t, err, &ledgerErr)
}

func TestClient_HasAccessPass_NodeDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable on purpose

	client := NewClient(ledgerTestConfig(srv.URL))

	status, err := client.HasAccessPass(context.Background(), "0xbuyer", "listing-1")
	assert.Nil(t, status)
	assert.Error(t, err)
}

func TestClient_IsCaretaker(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data": []interface{}{
				makeOwned("0xcap", "0xpkg::registry::CaretakerCap", map[string]interface{}{}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	ok, err := client.IsCaretaker(context.Background(), "0xcare")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_IsCaretaker_NoCapability(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data":        []interface{}{makeOwned("0xcoin", "0x2::coin::Coin<0x2::sui::SUI>", nil)},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	ok, err := client.IsCaretaker(context.Background(), "0xnobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ListCaretakerListings(t *testing.T) {
	rpc := &fakeRPC{pages: []map[string]interface{}{
		{
			"data": []interface{}{
				makeOwned("0xhouse1", "0xpkg::listings::House", map[string]interface{}{"name": "Villa"}),
				makeOwned("0xcoin", "0x2::coin::Coin<0x2::sui::SUI>", nil),
				makeOwned("0xhouse2", "0xpkg::listings::House", map[string]interface{}{"name": "Flat"}),
			},
			"hasNextPage": false,
		},
	}}
	srv := httptest.NewServer(rpc.handler(t))
	defer srv.Close()

	client := NewClient(ledgerTestConfig(srv.URL))

	listings, err := client.ListCaretakerListings(context.Background(), "0xcare")
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestMatchesListing(t *testing.T) {
	assert.True(t, matchesListing(map[string]interface{}{"listing_id": "l1"}, "l1"))
	assert.True(t, matchesListing(map[string]interface{}{"property_id": "l1"}, "l1"))
	assert.True(t, matchesListing(map[string]interface{}{"house_id": map[string]interface{}{"id": "l1"}}, "l1"))
	assert.False(t, matchesListing(map[string]interface{}{"listing_id": "l2"}, "l1"))
	assert.False(t, matchesListing(map[string]interface{}{"unrelated": "l1"}, "l1"))
	assert.False(t, matchesListing(map[string]interface{}{}, "l1"))
}
