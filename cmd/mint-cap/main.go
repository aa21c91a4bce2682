// mint-cap creates a trading account on a running deepdexd node and prints
// the capability token. The token authorizes every balance and order
// operation for the address, so keep it secret.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	node := flag.String("node", "http://localhost:8080", "deepdexd base URL")
	symbol := flag.String("symbol", "ETH-USDC", "pool symbol")
	address := flag.String("address", "", "account address (0x...)")
	flag.Parse()

	if !common.IsHexAddress(*address) {
		fmt.Fprintf(os.Stderr, "invalid address: %q\n", *address)
		os.Exit(1)
	}
	addr := common.HexToAddress(*address)

	body, _ := json.Marshal(map[string]string{"address": addr.Hex()})
	url := fmt.Sprintf("%s/api/v1/pools/%s/accounts", *node, *symbol)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var result struct {
		Address  string `json:"address"`
		CapToken string `json:"capToken"`
		Error    string `json:"error"`
		Detail   string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "node rejected request: %s %s\n", result.Error, result.Detail)
		os.Exit(1)
	}

	fmt.Printf("Pool:      %s\n", *symbol)
	fmt.Printf("Address:   %s\n", result.Address)
	fmt.Printf("Cap Token: %s (KEEP SECRET!)\n", result.CapToken)
}
