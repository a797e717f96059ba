package constants

import "time"

const (
	DelayBetweenRPCCalls   = 200              // delay in milliseconds between RPC failover attempts
	RPCCallTimeout         = 5 * time.Second  // timeout for a single JSON-RPC call
	DefaultConfirmTimeout  = 8 * time.Second  // how long a switch confirmation waits for an event
	DefaultProbeDelay      = 2 * time.Second  // settle time before re-probing when no event surface exists
	ReceiptPollInterval    = 2 * time.Second  // interval between receipt polls while waiting for finality
	ChainListTimeout       = 30 * time.Second // timeout for the chainlist download
	ChainListTTL           = 6 * time.Hour    // how long fetched chain metadata stays fresh
	BridgeHandshakeTimeout = 10 * time.Second // timeout for the wallet bridge websocket handshake
	MaxResponseBodySize    = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)

	// HTTP client timeouts for indexer requests
	HTTPClientTimeout     = 30 * time.Second
	TLSHandshakeTimeout   = 10 * time.Second
	ResponseHeaderTimeout = 20 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// JSON-RPC methods
const (
	MethodChainID            = "eth_chainId"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAccounts           = "eth_accounts"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodTransactionReceipt = "eth_getTransactionReceipt"
)

// EventChainChanged is the wallet event fired when the active chain changes
const EventChainChanged = "chainChanged"

// EIP-1193 provider error codes
const (
	ErrCodeUserRejected       = 4001
	ErrCodeChainNotConfigured = 4902
)

// CAIP-2 namespace for EVM chains
const EIP155Namespace = "eip155"

// Network Types
const (
	NetworkEthereum        = "ethereum"
	NetworkSepolia         = "sepolia"
	NetworkHolesky         = "holesky"
	NetworkBase            = "base"
	NetworkBaseSepolia     = "base-sepolia"
	NetworkOptimism        = "optimism"
	NetworkOptimismSepolia = "optimism-sepolia"
	NetworkArbitrum        = "arbitrum"
	NetworkArbitrumSepolia = "arbitrum-sepolia"
	NetworkPolygon         = "polygon"
	NetworkPolygonAmoy     = "polygon-amoy"
	NetworkCelo            = "celo"
	NetworkLinea           = "linea"
	NetworkScroll          = "scroll"
	NetworkAvalanche       = "avalanche"
)

// mapping from network name to numeric chain ID
var NetworkToChainID = map[string]int64{
	NetworkEthereum:        1,
	NetworkSepolia:         11155111,
	NetworkHolesky:         17000,
	NetworkBase:            8453,
	NetworkBaseSepolia:     84532,
	NetworkOptimism:        10,
	NetworkOptimismSepolia: 11155420,
	NetworkArbitrum:        42161,
	NetworkArbitrumSepolia: 421614,
	NetworkPolygon:         137,
	NetworkPolygonAmoy:     80002,
	NetworkCelo:            42220,
	NetworkLinea:           59144,
	NetworkScroll:          534352,
	NetworkAvalanche:       43114,
}

// EAS contract deployments, keyed by network name.
var EASContractAddress = map[string]string{
	NetworkEthereum:    "0xA1207F3BBa224E2c9c3c6D5aF63D0eb1582Ce587",
	NetworkSepolia:     "0xC2679fBD37d54388Ce493F1DB75320D236e1815e",
	NetworkBase:        "0x4200000000000000000000000000000000000021",
	NetworkBaseSepolia: "0x4200000000000000000000000000000000000021",
	NetworkOptimism:    "0x4200000000000000000000000000000000000021",
	NetworkArbitrum:    "0xbD75f629A22Dc1ceD33dDA0b68c546A1c035c458",
	NetworkCelo:        "0x72E1d8ccf5299fb36fEfD8CC4394B8ef7e98Af92",
	NetworkLinea:       "0xaEF4103A04090071165F78D45D83A0C0782c2B2a",
	NetworkScroll:      "0xC47300428b6AD2c7D03BB76D05A176058b47E6B0",
}

var OfficialRPCEndpoints = map[string][]string{
	NetworkEthereum:    {"https://ethereum-rpc.publicnode.com"},
	NetworkSepolia:     {"https://ethereum-sepolia-rpc.publicnode.com"},
	NetworkBase:        {"https://mainnet.base.org"},
	NetworkBaseSepolia: {"https://sepolia.base.org"},
	NetworkOptimism:    {"https://mainnet.optimism.io"},
	NetworkCelo:        {"https://forno.celo.org"},
}
