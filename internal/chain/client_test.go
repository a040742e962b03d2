package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rpcNode(t *testing.T, handler func(method string, params []interface{}) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		result, rpcErr := handler(req.Method, req.Params)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestBroadcastHex(t *testing.T) {
	var gotMethod string
	srv := rpcNode(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		gotMethod = method
		return map[string]interface{}{"hash": "CAFE", "code": 0, "log": ""}, nil
	})
	defer srv.Close()

	client, err := NewClient(ClientConfig{NodeURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.BroadcastHex(context.Background(), "deadbeef", true)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if gotMethod != "broadcast_tx_sync" {
		t.Fatalf("expected sync broadcast, node saw %s", gotMethod)
	}
	if !result.Accepted() || result.Hash != "CAFE" {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := client.BroadcastHex(context.Background(), "deadbeef", false); err != nil {
		t.Fatalf("async broadcast: %v", err)
	}
	if gotMethod != "broadcast_tx_async" {
		t.Fatalf("expected async broadcast, node saw %s", gotMethod)
	}
}

func TestBroadcastHexRejection(t *testing.T) {
	srv := rpcNode(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		return map[string]interface{}{"hash": "", "code": 65, "log": "sequence mismatch"}, nil
	})
	defer srv.Close()

	client, err := NewClient(ClientConfig{NodeURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.BroadcastHex(context.Background(), "deadbeef", true)
	if err == nil {
		t.Fatal("expected error for node rejection")
	}
	if result == nil || result.Code != 65 {
		t.Fatalf("expected rejection result to be returned, got %+v", result)
	}
}

func TestBroadcastHexRPCError(t *testing.T) {
	srv := rpcNode(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "mempool full"}
	})
	defer srv.Close()

	client, err := NewClient(ClientConfig{NodeURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.BroadcastHex(context.Background(), "deadbeef", true); err == nil {
		t.Fatal("expected rpc error to propagate")
	}
}

func TestAccountSequence(t *testing.T) {
	srv := rpcNode(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		if method != "account" {
			t.Fatalf("unexpected method %s", method)
		}
		return map[string]interface{}{"account_number": 7, "sequence": 42}, nil
	})
	defer srv.Close()

	client, err := NewClient(ClientConfig{NodeURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	acct, seq, err := client.AccountSequence(context.Background(), "someaddress")
	if err != nil {
		t.Fatalf("account sequence: %v", err)
	}
	if acct != 7 || seq != 42 {
		t.Fatalf("expected (7, 42), got (%d, %d)", acct, seq)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for missing node URL")
	}
}
