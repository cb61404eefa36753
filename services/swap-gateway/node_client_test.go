package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRPCNodeClientAttachesBearerToken(t *testing.T) {
	var gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var env rpcEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		gotMethod = env.Method
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      env.ID,
			"result":  EscrowView{OrderID: "order-1", Status: "active"},
		})
	}))
	defer srv.Close()

	client := NewRPCNodeClient(srv.URL, "node-token")
	view, err := client.CreateEscrow(context.Background(), CreateEscrowRequest{OrderID: "order-1"})
	require.NoError(t, err)
	require.Equal(t, "order-1", view.OrderID)
	require.Equal(t, "Bearer node-token", gotAuth)
	require.Equal(t, "htlc_create", gotMethod)
}

func TestRPCNodeClientRequiresTokenForPrivilegedCalls(t *testing.T) {
	client := NewRPCNodeClient("http://localhost:0", "")
	_, err := client.CreateEscrow(context.Background(), CreateEscrowRequest{OrderID: "order-1"})
	require.Error(t, err)
}

func TestRPCNodeClientSurfacesNodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]interface{}{"code": -32042, "message": "not_found", "data": "escrow not found"},
		})
	}))
	defer srv.Close()

	client := NewRPCNodeClient(srv.URL, "")
	_, err := client.GetEscrow(context.Background(), "missing", "1111111111111111111111111111111111111111")
	var rpcErr *NodeRPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, http.StatusNotFound, rpcErr.HTTPStatus)
	require.Equal(t, -32042, rpcErr.Code)
}
