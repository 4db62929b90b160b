package main

import "os"

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X main.captchaAPIKey=YOUR_KEY"
var (
	captchaAPIKey  string // -X main.captchaAPIKey=...
	antiCapAPIKey  string // -X main.antiCapAPIKey=...
	proxyAPIKeyVar string // -X main.proxyAPIKeyVar=...
)

// GetCaptchaAPIKey returns the 2Captcha API key (build-time or env fallback)
func GetCaptchaAPIKey() string {
	if captchaAPIKey != "" {
		return captchaAPIKey
	}
	return os.Getenv("2CAP_KEY")
}

// GetAntiCaptchaAPIKey returns the Anti-Captcha API key (build-time or env fallback)
func GetAntiCaptchaAPIKey() string {
	if antiCapAPIKey != "" {
		return antiCapAPIKey
	}
	return os.Getenv("ANTICAP_KEY")
}

// GetProxyAPIKey returns the bearer token for the remote proxy endpoint.
func GetProxyAPIKey() string {
	if proxyAPIKeyVar != "" {
		return proxyAPIKeyVar
	}
	return os.Getenv("PROXY_API_KEY")
}
