package main

import (
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// browserUserAgent is the user agent presented by both the HTTP clients and
// the chromedp session. Keeping them identical avoids a fingerprint split
// between the signup browser and the mailbox/proxy API traffic.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// NewHTTPClient creates a browser-profile HTTP client used for the
// disposable-mailbox API and remote proxy-list fetches.
// proxyURL may be empty. skipVerify disables certificate checks for
// self-hosted mailbox services running on plain/self-signed endpoints.
func NewHTTPClient(logger tls_client.Logger, proxyURL string, skipVerify bool) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(30),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(jar),
	}

	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}
	if skipVerify {
		options = append(options, tls_client.WithInsecureSkipVerify())
	}

	return tls_client.NewHttpClient(logger, options...)
}
