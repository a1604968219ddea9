package utils

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pkg/errors"
)

// Chain is a named network the load generator knows how to reach
type Chain struct {
	Key        string
	Name       string
	EnvVar     string
	DefaultRPC string
	Testnet    bool
}

// RPC returns the endpoint, preferring the chain's environment override
func (c Chain) RPC() string {
	if v := strings.TrimSpace(os.Getenv(c.EnvVar)); v != "" {
		return v
	}
	return c.DefaultRPC
}

// Chains is the built-in catalog, in menu order
var Chains = []Chain{
	{Key: "rari-testnet", Name: "Rari Testnet", EnvVar: "RARI_TESTNET_RPC", DefaultRPC: "https://rari-testnet.calderachain.xyz/http", Testnet: true},
	{Key: "logx-testnet", Name: "LogX Testnet", EnvVar: "LOGX_TESTNET_RPC", DefaultRPC: "https://kartel-testnet.alt.technology", Testnet: true},
	{Key: "appchain-testnet", Name: "Appchain Testnet", EnvVar: "APPCHAIN_TESTNET_RPC", DefaultRPC: "https://appchaintestnet.rpc.caldera.xyz", Testnet: true},
	{Key: "nodeops-testnet", Name: "NodeOps Testnet", EnvVar: "NODEOPS_TESTNET_RPC", DefaultRPC: "https://nodeops-orchestrator-network.calderachain.xyz/http", Testnet: true},
	{Key: "apechain-testnet", Name: "Apechain Testnet", EnvVar: "APECHAIN_TESTNET_RPC", DefaultRPC: "https://apechain-testnet.rpc.caldera.xyz/http", Testnet: true},
	{Key: "rufus-testnet", Name: "Rufus Testnet", EnvVar: "RUFUS_TESTNET_RPC", DefaultRPC: "https://rufus-sepolia-testnet.rpc.caldera.xyz/http", Testnet: true},
	{Key: "t3rn-testnet", Name: "T3rn Testnet", EnvVar: "T3RN_TESTNET_RPC", DefaultRPC: "https://brn-testnet.rpc.caldera.xyz/http", Testnet: true},
	{Key: "huddle01", Name: "Huddle01", EnvVar: "HUDDLE01_RPC", DefaultRPC: "https://huddle-testnet.rpc.caldera.xyz/http", Testnet: true},
	{Key: "custom", Name: "Custom Network", EnvVar: "CUSTOM_RPC", DefaultRPC: "https://your-custom-rpc-endpoint.com", Testnet: true},
}

// LookupChain finds a chain by key, display name (case-insensitive) or 1-based menu index
func LookupChain(chains []Chain, sel string) (Chain, bool) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return Chain{}, false
	}
	if idx, err := strconv.Atoi(sel); err == nil {
		if idx >= 1 && idx <= len(chains) {
			return chains[idx-1], true
		}
		return Chain{}, false
	}
	for _, c := range chains {
		if strings.EqualFold(c.Key, sel) || strings.EqualFold(c.Name, sel) {
			return c, true
		}
	}
	return Chain{}, false
}

// SelectChain asks the user to pick a chain from the catalog
func SelectChain(chains []Chain) (Chain, error) {
	if len(chains) == 0 {
		return Chain{}, errors.New("empty chain catalog")
	}

	options := make([]string, len(chains))
	for i, c := range chains {
		options[i] = fmt.Sprintf("%s (%s)", c.Name, c.RPC())
	}

	var idx int
	prompt := &survey.Select{
		Message: "Select chain:",
		Options: options,
	}
	if err := survey.AskOne(prompt, &idx); err != nil {
		return Chain{}, err
	}
	return chains[idx], nil
}

// PrintChains writes the catalog grouped by network type
func PrintChains(w io.Writer, chains []Chain) {
	section := func(title string, testnet bool) {
		fmt.Fprintf(w, "%s\n\n", title)
		for i, c := range chains {
			if c.Testnet != testnet {
				continue
			}
			fmt.Fprintf(w, "   %d.  %s [%s]\n", i+1, c.Name, c.Key)
			fmt.Fprintf(w, "       └─ %s\n", c.RPC())
		}
		fmt.Fprintln(w)
	}
	section("TESTNET NETWORKS", true)
	section("MAINNET NETWORKS", false)
}
