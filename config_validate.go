package main

import (
	"fmt"
	"net/url"
	"strings"
)

func validateConfig(cfg Config) error {
	if cfg.Proxy {
		if len(cfg.Upstreams) == 0 {
			return fmt.Errorf("proxy mode requires at least one [[upstream]] entry")
		}
		for i, ep := range cfg.Upstreams {
			if err := validateHostPort(ep.URL); err != nil {
				return fmt.Errorf("upstream %d: %w", i, err)
			}
			if strings.TrimSpace(ep.Auth) == "" {
				return fmt.Errorf("upstream %d: auth (username) is required", i)
			}
		}
		return nil
	}

	if len(cfg.BTCDs) == 0 {
		return fmt.Errorf("server mode requires at least one [[btcd]] entry")
	}
	for i, ep := range cfg.BTCDs {
		if err := validateRPCURL(ep.URL); err != nil {
			return fmt.Errorf("btcd %d: %w", i, err)
		}
	}
	if strings.TrimSpace(cfg.BTCAddress) == "" {
		return fmt.Errorf("btcaddress is required in server mode")
	}
	return nil
}

// validateHostPort accepts "host:port" with an optional stratum+tcp:// or
// tcp:// scheme prefix.
func validateHostPort(raw string) error {
	if _, _, err := splitStratumURL(raw); err != nil {
		return err
	}
	return nil
}

func splitStratumURL(raw string) (host, port string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("empty url")
	}
	for _, scheme := range []string{"stratum+tcp://", "tcp://"} {
		if strings.HasPrefix(raw, scheme) {
			raw = strings.TrimPrefix(raw, scheme)
			break
		}
	}
	raw = strings.TrimSuffix(raw, "/")
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", fmt.Errorf("url %q must be host:port", raw)
	}
	return raw[:idx], raw[idx+1:], nil
}

func validateRPCURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q missing host", raw)
	}
	return nil
}
