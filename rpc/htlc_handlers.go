package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"swaplock/core/events"
	"swaplock/native/htlc"
)

const (
	codeHTLCInvalidParams = -32041
	codeHTLCNotFound      = -32042
	codeHTLCForbidden     = -32043
	codeHTLCConflict      = -32044
	codeHTLCInternal      = -32045
)

type htlcCreateParams struct {
	OrderID    string `json:"orderId"`
	SecretHash string `json:"secretHash"`
	Owner      string `json:"owner"`
	Taker      string `json:"taker"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Duration   int64  `json:"duration"`
}

type htlcLookupParams struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
}

type htlcRevealParams struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
	Secret  string `json:"secret"`
	Caller  string `json:"caller"`
}

type htlcCancelParams struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
	Caller  string `json:"caller"`
}

type htlcListEventsParams struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
}

type tokenMintParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type tokenBalanceParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type htlcAmountResult struct {
	Amount string `json:"amount"`
}

type htlcBoolResult struct {
	OK bool `json:"ok"`
}

type htlcEscrowJSON struct {
	OrderID    string `json:"orderId"`
	SecretHash string `json:"secretHash"`
	Owner      string `json:"owner"`
	Taker      string `json:"taker"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Timelock   int64  `json:"timelock"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
}

type tokenBalanceResult struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

func (s *Server) handleHTLCCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params htlcCreateParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	secretHash, err := parseSecretHash(params.SecretHash)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	taker, err := parseHexAddress(params.Taker, "taker")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	created, err := s.node.CreateEscrow(params.OrderID, secretHash, owner, taker, params.Asset, amount, params.Duration)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(created))
}

func (s *Server) handleHTLCReveal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params htlcRevealParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	caller, err := parseHexAddress(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	secret, err := parseHexBytes(params.Secret)
	if err != nil {
		writeInvalidParams(w, req.ID, fmt.Errorf("invalid secret: %w", err))
		return
	}
	amount, err := s.node.RevealEscrow(params.OrderID, owner, secret, caller)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcAmountResult{Amount: amount.String()})
}

func (s *Server) handleHTLCCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params htlcCancelParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	caller, err := parseHexAddress(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := s.node.CancelEscrow(params.OrderID, owner, caller)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcAmountResult{Amount: amount.String()})
}

func (s *Server) handleHTLCGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, ok := decodeLookupParams(w, req)
	if !ok {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	record, err := s.node.GetEscrow(params.OrderID, owner)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(record))
}

func (s *Server) handleHTLCExists(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, ok := decodeLookupParams(w, req)
	if !ok {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	exists, err := s.node.EscrowExists(params.OrderID, owner)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcBoolResult{OK: exists})
}

func (s *Server) handleHTLCIsActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, ok := decodeLookupParams(w, req)
	if !ok {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	active, err := s.node.EscrowIsActive(params.OrderID, owner)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcBoolResult{OK: active})
}

func (s *Server) handleHTLCIsExpired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, ok := decodeLookupParams(w, req)
	if !ok {
		return
	}
	owner, err := parseHexAddress(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	expired, err := s.node.EscrowIsExpired(params.OrderID, owner)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcBoolResult{OK: expired})
}

func (s *Server) handleHTLCListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeHTLCInvalidParams, "invalid_params", "too many parameters")
		return
	}
	var params htlcListEventsParams
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	prefix := params.Prefix
	if prefix == "" {
		prefix = "htlc."
	}
	entries := s.node.Events(prefix, params.Limit)
	if entries == nil {
		entries = []events.Entry{}
	}
	writeResult(w, req.ID, entries)
}

func (s *Server) handleTokenMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenMintParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	addr, err := parseHexAddress(params.Address, "address")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.node.Mint(addr, params.Asset, amount); err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, htlcBoolResult{OK: true})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	addr, err := parseHexAddress(params.Address, "address")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	balance, err := s.node.BalanceOf(addr, params.Asset)
	if err != nil {
		writeHTLCError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{
		Address: params.Address,
		Asset:   strings.ToUpper(strings.TrimSpace(params.Asset)),
		Balance: balance.String(),
	})
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeHTLCInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeInvalidParams(w, req.ID, err)
		return false
	}
	return true
}

func decodeLookupParams(w http.ResponseWriter, req *RPCRequest) (htlcLookupParams, bool) {
	var params htlcLookupParams
	if !decodeSingleParam(w, req, &params) {
		return params, false
	}
	return params, true
}

func writeInvalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeHTLCInvalidParams, "invalid_params", err.Error())
}

func parseHexAddress(value, field string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("%s required", field)
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 40 {
		return out, fmt.Errorf("%s must be 20 bytes", field)
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("invalid %s: %w", field, err)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseSecretHash(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("secretHash required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("secretHash must be 32 bytes")
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}

func parseHexBytes(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if cleaned == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(cleaned)
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a decimal integer")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	return amount, nil
}

func formatHexAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatEscrowJSON(record *htlc.Escrow) htlcEscrowJSON {
	amount := "0"
	if record.Amount != nil {
		amount = record.Amount.String()
	}
	return htlcEscrowJSON{
		OrderID:    record.OrderID,
		SecretHash: "0x" + hex.EncodeToString(record.SecretHash[:]),
		Owner:      formatHexAddress(record.Owner),
		Taker:      formatHexAddress(record.Taker),
		Asset:      record.Asset,
		Amount:     amount,
		Timelock:   record.Timelock,
		CreatedAt:  record.CreatedAt,
		Status:     record.Status.String(),
	}
}

func writeHTLCError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeHTLCInternal
	message := "internal_error"
	data := err.Error()
	switch {
	case errors.Is(err, htlc.ErrNotFound):
		status = http.StatusNotFound
		code = codeHTLCNotFound
		message = "not_found"
	case errors.Is(err, htlc.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeHTLCForbidden
		message = "forbidden"
	case errors.Is(err, htlc.ErrInvalidOrderID) || errors.Is(err, htlc.ErrInvalidAmount) ||
		errors.Is(err, htlc.ErrInvalidHash) || errors.Is(err, htlc.ErrInvalidTimelock) ||
		errors.Is(err, htlc.ErrInvalidTaker) || errors.Is(err, htlc.ErrInvalidAsset):
		status = http.StatusBadRequest
		code = codeHTLCInvalidParams
		message = "invalid_params"
	case errors.Is(err, htlc.ErrNotActive) || errors.Is(err, htlc.ErrAlreadyExists) ||
		errors.Is(err, htlc.ErrTimelockExpired) || errors.Is(err, htlc.ErrTimelockNotExpired) ||
		errors.Is(err, htlc.ErrHashMismatch) || errors.Is(err, htlc.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeHTLCConflict
		message = "conflict"
	}
	writeError(w, status, id, code, message, data)
}
