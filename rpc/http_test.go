package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"swaplock/core"
	"swaplock/native/htlc"
	"swaplock/storage"
)

const testRPCToken = "test-token"

func rpcTestAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func hexAddr(fill byte) string {
	addr := rpcTestAddr(fill)
	return "0x" + hex.EncodeToString(addr[:])
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("SWAPLOCK_RPC_TOKEN", testRPCToken)
	node, err := core.NewNode(storage.NewMemDB(), rpcTestAddr(0xad), []core.GenesisAlloc{
		{Address: rpcTestAddr(0x01), Asset: "SPN", Amount: big.NewInt(10_000)},
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetNowFunc(func() int64 { return 1_000 })
	return NewServer(node, nil)
}

func doRPC(t *testing.T, server *Server, method string, params interface{}, token string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)

	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return recorder, resp
}

func createTestEscrow(t *testing.T, server *Server, orderID string) {
	t.Helper()
	secretHash := htlc.SecretDigest([]byte("rpc secret"))
	params := map[string]interface{}{
		"orderId":    orderID,
		"secretHash": "0x" + hex.EncodeToString(secretHash[:]),
		"owner":      hexAddr(0x01),
		"taker":      hexAddr(0x02),
		"asset":      "SPN",
		"amount":     "500",
		"duration":   3600,
	}
	recorder, resp := doRPC(t, server, "htlc_create", params, testRPCToken)
	if resp.Error != nil {
		t.Fatalf("create failed: %+v", resp.Error)
	}
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	server := newTestServer(t)
	secretHash := htlc.SecretDigest([]byte("x"))
	params := map[string]interface{}{
		"orderId":    "order-1",
		"secretHash": "0x" + hex.EncodeToString(secretHash[:]),
		"owner":      hexAddr(0x01),
		"taker":      hexAddr(0x02),
		"asset":      "SPN",
		"amount":     "1",
		"duration":   60,
	}
	recorder, resp := doRPC(t, server, "htlc_create", params, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}

	recorder, _ = doRPC(t, server, "htlc_create", params, "wrong-token")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", recorder.Code)
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	server := newTestServer(t)
	createTestEscrow(t, server, "order-1")

	recorder, resp := doRPC(t, server, "htlc_get", map[string]interface{}{
		"orderId": "order-1",
		"owner":   hexAddr(0x01),
	}, "")
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("get failed: status=%d err=%+v", recorder.Code, resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var escrow htlcEscrowJSON
	if err := json.Unmarshal(raw, &escrow); err != nil {
		t.Fatalf("decode escrow: %v", err)
	}
	if escrow.OrderID != "order-1" || escrow.Asset != "SPN" || escrow.Amount != "500" {
		t.Fatalf("unexpected escrow: %+v", escrow)
	}
	if escrow.Status != "active" {
		t.Fatalf("expected active status, got %q", escrow.Status)
	}
	if escrow.Timelock != 4_600 {
		t.Fatalf("expected timelock 4600, got %d", escrow.Timelock)
	}
}

func TestRevealPaysTaker(t *testing.T) {
	server := newTestServer(t)
	createTestEscrow(t, server, "order-1")

	recorder, resp := doRPC(t, server, "htlc_reveal", map[string]interface{}{
		"orderId": "order-1",
		"owner":   hexAddr(0x01),
		"secret":  "0x" + hex.EncodeToString([]byte("rpc secret")),
		"caller":  hexAddr(0x02),
	}, testRPCToken)
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("reveal failed: status=%d err=%+v", recorder.Code, resp.Error)
	}

	_, resp = doRPC(t, server, "token_balance", map[string]interface{}{
		"address": hexAddr(0x02),
		"asset":   "SPN",
	}, "")
	raw, _ := json.Marshal(resp.Result)
	var balance tokenBalanceResult
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != "500" {
		t.Fatalf("expected taker balance 500, got %s", balance.Balance)
	}
}

func TestRevealWrongSecretConflicts(t *testing.T) {
	server := newTestServer(t)
	createTestEscrow(t, server, "order-1")

	recorder, resp := doRPC(t, server, "htlc_reveal", map[string]interface{}{
		"orderId": "order-1",
		"owner":   hexAddr(0x01),
		"secret":  "0x" + hex.EncodeToString([]byte("not the secret")),
		"caller":  hexAddr(0x02),
	}, testRPCToken)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeHTLCConflict {
		t.Fatalf("expected conflict code, got %+v", resp.Error)
	}
}

func TestCancelBeforeExpiryConflicts(t *testing.T) {
	server := newTestServer(t)
	createTestEscrow(t, server, "order-1")

	recorder, resp := doRPC(t, server, "htlc_cancel", map[string]interface{}{
		"orderId": "order-1",
		"owner":   hexAddr(0x01),
		"caller":  hexAddr(0x01),
	}, testRPCToken)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeHTLCConflict {
		t.Fatalf("expected conflict code, got %+v", resp.Error)
	}
}

func TestGetMissingEscrowNotFound(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := doRPC(t, server, "htlc_get", map[string]interface{}{
		"orderId": "missing",
		"owner":   hexAddr(0x01),
	}, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeHTLCNotFound {
		t.Fatalf("expected not_found code, got %+v", resp.Error)
	}
}

func TestExistsDoesNotErrorOnMissing(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := doRPC(t, server, "htlc_exists", map[string]interface{}{
		"orderId": "missing",
		"owner":   hexAddr(0x01),
	}, "")
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("exists failed: status=%d err=%+v", recorder.Code, resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var result htlcBoolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OK {
		t.Fatalf("expected exists=false")
	}
}

func TestListEventsAfterLifecycle(t *testing.T) {
	server := newTestServer(t)
	createTestEscrow(t, server, "order-1")
	createTestEscrow(t, server, "order-2")

	recorder, resp := doRPC(t, server, "htlc_listEvents", map[string]interface{}{"limit": 1}, "")
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("list events failed: status=%d err=%+v", recorder.Code, resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var entries []struct {
		Sequence uint64 `json:"sequence"`
		Event    struct {
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		} `json:"event"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected limit to cap entries, got %d", len(entries))
	}
	if entries[0].Event.Type != htlc.EventTypeCreated {
		t.Fatalf("unexpected event type %s", entries[0].Event.Type)
	}
	if entries[0].Event.Attributes["orderId"] != "order-2" {
		t.Fatalf("expected newest event last, got %+v", entries[0].Event.Attributes)
	}
}

func TestTokenMintRequiresAuth(t *testing.T) {
	server := newTestServer(t)
	params := map[string]interface{}{
		"address": hexAddr(0x05),
		"asset":   "SPN",
		"amount":  "100",
	}
	recorder, _ := doRPC(t, server, "token_mint", params, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	recorder, resp := doRPC(t, server, "token_mint", params, testRPCToken)
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("mint failed: status=%d err=%+v", recorder.Code, resp.Error)
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	server := newTestServer(t)
	cases := []struct {
		name   string
		params map[string]interface{}
	}{
		{"short owner", map[string]interface{}{"orderId": "o", "owner": "0x1234"}},
		{"missing owner", map[string]interface{}{"orderId": "o"}},
		{"bad hex", map[string]interface{}{"orderId": "o", "owner": "0x" + strings.Repeat("zz", 20)}},
	}
	for _, tc := range cases {
		recorder, resp := doRPC(t, server, "htlc_get", tc.params, "")
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, recorder.Code)
		}
		if resp.Error == nil || resp.Error.Code != codeHTLCInvalidParams {
			t.Fatalf("%s: expected invalid_params, got %+v", tc.name, resp.Error)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := doRPC(t, server, "htlc_unknown", nil, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestMalformedEnvelope(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	recorder = httptest.NewRecorder()
	server.handle(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", recorder.Code)
	}

	payload := fmt.Sprintf(`{"jsonrpc":"1.0","id":1,"method":"htlc_get","params":[{"orderId":"o","owner":%q}]}`, hexAddr(0x01))
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	recorder = httptest.NewRecorder()
	server.handle(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong version, got %d", recorder.Code)
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := parseHexAddress("", "owner"); err == nil {
		t.Fatalf("expected error for empty address")
	}
	addr, err := parseHexAddress(hexAddr(0x07), "owner")
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if addr != rpcTestAddr(0x07) {
		t.Fatalf("unexpected address %x", addr)
	}
	if _, err := parseSecretHash("0x1234"); err == nil {
		t.Fatalf("expected error for short hash")
	}
	if _, err := parsePositiveBigInt("-5"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if _, err := parsePositiveBigInt("0"); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	amount, err := parsePositiveBigInt("12345678901234567890")
	if err != nil {
		t.Fatalf("parse big amount: %v", err)
	}
	if amount.Cmp(new(big.Int).SetUint64(12345678901234567890)) != 0 {
		t.Fatalf("unexpected amount %s", amount)
	}
}
