package main

const (
	defaultDataDir        = "data"
	defaultControlSocket  = "generator.sock"
	defaultStratifierSock = "stratifier.sock"
	defaultLogLevelName   = "info"
	defaultNetwork        = "mainnet"
)

func defaultConfig() Config {
	return Config{
		DataDir:   defaultDataDir,
		Network:   defaultNetwork,
		LogLevel:  defaultLogLevelName,
		ClientTag: clientTag(),
	}
}
