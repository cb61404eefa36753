package main

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("SWAPLOCK_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "gen-secret":
		genSecret()
	case "create":
		if len(args) < 7 {
			fmt.Println("Usage: create <orderId> <secretHash> <owner> <taker> <asset> <amount> [duration]")
			os.Exit(1)
		}
		duration := int64(3600)
		if len(args) > 7 {
			parsed, err := strconv.ParseInt(args[7], 10, 64)
			if err != nil {
				fmt.Println("Error: Invalid duration.")
				os.Exit(1)
			}
			duration = parsed
		}
		createEscrow(args[1], args[2], args[3], args[4], args[5], args[6], duration)
	case "reveal":
		if len(args) < 5 {
			fmt.Println("Usage: reveal <orderId> <owner> <secret> <caller>")
			os.Exit(1)
		}
		revealEscrow(args[1], args[2], args[3], args[4])
	case "cancel":
		if len(args) < 4 {
			fmt.Println("Usage: cancel <orderId> <owner> <caller>")
			os.Exit(1)
		}
		cancelEscrow(args[1], args[2], args[3])
	case "get":
		if len(args) < 3 {
			fmt.Println("Usage: get <orderId> <owner>")
			os.Exit(1)
		}
		queryEscrow("htlc_get", args[1], args[2])
	case "exists":
		if len(args) < 3 {
			fmt.Println("Usage: exists <orderId> <owner>")
			os.Exit(1)
		}
		queryEscrow("htlc_exists", args[1], args[2])
	case "active":
		if len(args) < 3 {
			fmt.Println("Usage: active <orderId> <owner>")
			os.Exit(1)
		}
		queryEscrow("htlc_isActive", args[1], args[2])
	case "expired":
		if len(args) < 3 {
			fmt.Println("Usage: expired <orderId> <owner>")
			os.Exit(1)
		}
		queryEscrow("htlc_isExpired", args[1], args[2])
	case "events":
		limit := 0
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Error: Invalid limit.")
				os.Exit(1)
			}
			limit = parsed
		}
		listEvents(limit)
	case "mint":
		if len(args) < 4 {
			fmt.Println("Usage: mint <address> <asset> <amount>")
			os.Exit(1)
		}
		mint(args[1], args[2], args[3])
	case "balance":
		if len(args) < 3 {
			fmt.Println("Usage: balance <address> <asset>")
			os.Exit(1)
		}
		balance(args[1], args[2])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

// genSecret prints a fresh random secret plus its SHA-256 hash so the two swap
// legs can be set up out of band.
func genSecret() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Printf("Error generating secret: %v\n", err)
		os.Exit(1)
	}
	digest := sha256.Sum256(secret)
	fmt.Printf("secret:     0x%s\n", hex.EncodeToString(secret))
	fmt.Printf("secretHash: 0x%s\n", hex.EncodeToString(digest[:]))
}

func createEscrow(orderID, secretHash, owner, taker, asset, amount string, duration int64) {
	result, err := call("htlc_create", map[string]interface{}{
		"orderId":    orderID,
		"secretHash": secretHash,
		"owner":      owner,
		"taker":      taker,
		"asset":      asset,
		"amount":     amount,
		"duration":   duration,
	}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func revealEscrow(orderID, owner, secret, caller string) {
	result, err := call("htlc_reveal", map[string]interface{}{
		"orderId": orderID,
		"owner":   owner,
		"secret":  secret,
		"caller":  caller,
	}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func cancelEscrow(orderID, owner, caller string) {
	result, err := call("htlc_cancel", map[string]interface{}{
		"orderId": orderID,
		"owner":   owner,
		"caller":  caller,
	}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func queryEscrow(method, orderID, owner string) {
	result, err := call(method, map[string]interface{}{
		"orderId": orderID,
		"owner":   owner,
	}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func listEvents(limit int) {
	result, err := call("htlc_listEvents", map[string]interface{}{"limit": limit}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func mint(address, asset, amount string) {
	result, err := call("token_mint", map[string]interface{}{
		"address": address,
		"asset":   asset,
		"amount":  amount,
	}, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func balance(address, asset string) {
	result, err := call("token_balance", map[string]interface{}{
		"address": address,
		"asset":   asset,
	}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func call(method string, params map[string]interface{}, requireAuth bool) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires SWAPLOCK_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Data != nil {
			return nil, fmt.Errorf("error from node: %s (%v)", rpcResp.Error.Message, rpcResp.Error.Data)
		}
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func printUsage() {
	fmt.Println("Usage: swaplock-cli [--rpc <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Write commands require SWAPLOCK_RPC_TOKEN to be exported.")
	fmt.Println("Commands:")
	fmt.Println("  gen-secret                                              - Generates a random secret and its SHA-256 hash")
	fmt.Println("  create <orderId> <hash> <owner> <taker> <asset> <amount> [duration]")
	fmt.Println("                                                          - Locks funds behind a hashlock")
	fmt.Println("  reveal <orderId> <owner> <secret> <caller>              - Releases funds to the taker")
	fmt.Println("  cancel <orderId> <owner> <caller>                       - Refunds an expired escrow")
	fmt.Println("  get <orderId> <owner>                                   - Shows a stored escrow")
	fmt.Println("  exists <orderId> <owner>                                - Checks whether a record exists")
	fmt.Println("  active <orderId> <owner>                                - Checks whether an escrow is still active")
	fmt.Println("  expired <orderId> <owner>                               - Checks whether the cancellation window is open")
	fmt.Println("  events [limit]                                          - Lists recent escrow events")
	fmt.Println("  mint <address> <asset> <amount>                         - Mints demo tokens (admin)")
	fmt.Println("  balance <address> <asset>                               - Shows a token balance")
}
