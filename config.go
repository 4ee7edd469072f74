package main

// EndpointConfig describes one upstream endpoint: a bitcoind RPC server in
// server mode, or a stratum pool in proxy mode.
type EndpointConfig struct {
	URL  string
	Auth string
	Pass string
}

type Config struct {
	// Mode selection. Proxy mode turns the generator into a stratum client
	// against upstream pools; otherwise it serves block templates from the
	// configured bitcoinds.
	Proxy bool

	// Server-mode bitcoind endpoints, in preference order.
	BTCDs []EndpointConfig
	// Proxy-mode upstream pools, in preference order.
	Upstreams []EndpointConfig

	// Pool payout address, validated at startup in server mode.
	BTCAddress string
	Network    string

	// Control socket serving the stratifier's requests, and the stratifier's
	// own socket for outbound signals. Relative paths are under DataDir.
	ControlSocket  string
	StratifierSock string

	// Optional bitcoind zmq hashblock publisher (server mode).
	ZMQBlockAddr string

	// Optional Discord block-solve notices.
	DiscordBotToken        string
	DiscordNotifyChannelID string

	ClientTag string
	DataDir   string
	LogLevel  string
}
