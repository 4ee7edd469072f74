package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
)

// On-disk layout of generator.toml. Field names mirror the historical ckpool
// configuration keys where one exists.
type configFile struct {
	Proxy        bool           `toml:"proxy"`
	BTCAddress   string         `toml:"btcaddress"`
	Network      string         `toml:"network"`
	DataDir      string         `toml:"datadir"`
	LogLevel     string         `toml:"log_level"`
	ClientTag    string         `toml:"client_tag"`
	ControlSock  string         `toml:"control_socket"`
	Stratifier   string         `toml:"stratifier_socket"`
	ZMQBlockAddr string         `toml:"zmq_block_addr"`
	BTCD         []endpointTOML `toml:"btcd"`
	Upstream     []endpointTOML `toml:"upstream"`
	Discord      *discordTOML   `toml:"discord"`
}

type endpointTOML struct {
	URL  string `toml:"url"`
	Auth string `toml:"auth"`
	Pass string `toml:"pass"`
}

type discordTOML struct {
	BotToken        string `toml:"bot_token"`
	NotifyChannelID string `toml:"notify_channel_id"`
}

// secrets.toml may override endpoint credentials and the Discord token so
// they stay out of the main config file.
type secretsFile struct {
	BTCDAuth        string `toml:"btcd_auth"`
	BTCDPass        string `toml:"btcd_pass"`
	UpstreamAuth    string `toml:"upstream_auth"`
	UpstreamPass    string `toml:"upstream_pass"`
	DiscordBotToken string `toml:"discord_bot_token"`
}

func defaultConfigPath(dataDir string) string {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "config", "generator.toml")
}

func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	if configPath == "" {
		configPath = defaultConfigPath(cfg.DataDir)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("config file missing: %s", configPath)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var file configFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	applyConfigFile(&cfg, file)

	secretsPath := filepath.Join(filepath.Dir(configPath), "secrets.toml")
	ensureSecretFilePermissions(secretsPath)
	if sdata, err := os.ReadFile(secretsPath); err == nil {
		var secrets secretsFile
		if err := toml.Unmarshal(sdata, &secrets); err != nil {
			return cfg, fmt.Errorf("parse secrets %s: %w", secretsPath, err)
		}
		applySecrets(&cfg, secrets)
	} else if !os.IsNotExist(err) {
		logger.Warn("read secrets file", "path", secretsPath, "error", err)
	}

	return cfg, nil
}

func applyConfigFile(cfg *Config, file configFile) {
	cfg.Proxy = file.Proxy
	if v := strings.TrimSpace(file.BTCAddress); v != "" {
		cfg.BTCAddress = v
	}
	if v := strings.TrimSpace(file.Network); v != "" {
		cfg.Network = strings.ToLower(v)
	}
	if v := strings.TrimSpace(file.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(file.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(file.ClientTag); v != "" {
		cfg.ClientTag = v
	}
	if v := strings.TrimSpace(file.ControlSock); v != "" {
		cfg.ControlSocket = v
	}
	if v := strings.TrimSpace(file.Stratifier); v != "" {
		cfg.StratifierSock = v
	}
	if v := strings.TrimSpace(file.ZMQBlockAddr); v != "" {
		cfg.ZMQBlockAddr = v
	}
	for _, ep := range file.BTCD {
		cfg.BTCDs = append(cfg.BTCDs, EndpointConfig{
			URL:  strings.TrimSpace(ep.URL),
			Auth: strings.TrimSpace(ep.Auth),
			Pass: ep.Pass,
		})
	}
	for _, ep := range file.Upstream {
		cfg.Upstreams = append(cfg.Upstreams, EndpointConfig{
			URL:  strings.TrimSpace(ep.URL),
			Auth: strings.TrimSpace(ep.Auth),
			Pass: ep.Pass,
		})
	}
	if file.Discord != nil {
		cfg.DiscordBotToken = strings.TrimSpace(file.Discord.BotToken)
		cfg.DiscordNotifyChannelID = strings.TrimSpace(file.Discord.NotifyChannelID)
	}
}

func applySecrets(cfg *Config, secrets secretsFile) {
	for i := range cfg.BTCDs {
		if v := strings.TrimSpace(secrets.BTCDAuth); v != "" {
			cfg.BTCDs[i].Auth = v
		}
		if secrets.BTCDPass != "" {
			cfg.BTCDs[i].Pass = secrets.BTCDPass
		}
	}
	for i := range cfg.Upstreams {
		if v := strings.TrimSpace(secrets.UpstreamAuth); v != "" {
			cfg.Upstreams[i].Auth = v
		}
		if secrets.UpstreamPass != "" {
			cfg.Upstreams[i].Pass = secrets.UpstreamPass
		}
	}
	if v := strings.TrimSpace(secrets.DiscordBotToken); v != "" {
		cfg.DiscordBotToken = v
	}
}

// ensureSecretFilePermissions tightens the mode of an existing secrets file.
func ensureSecretFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 == 0 {
		return
	}
	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("tighten secrets permissions", "path", path, "error", err)
	}
}

// controlSocketPath resolves the control socket path: explicit config value,
// or <datadir>/generator.sock.
func controlSocketPath(cfg Config) string {
	p := strings.TrimSpace(cfg.ControlSocket)
	if p == "" {
		p = defaultControlSocket
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cfg.DataDir, p)
	}
	return p
}

func stratifierSocketPath(cfg Config) string {
	p := strings.TrimSpace(cfg.StratifierSock)
	if p == "" {
		p = defaultStratifierSock
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cfg.DataDir, p)
	}
	return p
}
