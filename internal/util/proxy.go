// Package util provides small helpers shared across the proxy, currently the
// outbound proxy configuration for upstream HTTP clients.
package util

import (
	"context"
	"net"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SetProxy routes the client's transport through the given proxy URL. SOCKS5,
// HTTP, and HTTPS proxies are supported; an empty or unparsable URL leaves the
// client untouched.
func SetProxy(rawURL string, httpClient *http.Client) *http.Client {
	if rawURL == "" {
		return httpClient
	}
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return httpClient
	}
	var transport *http.Transport
	switch proxyURL.Scheme {
	case "socks5":
		username := proxyURL.User.Username()
		password, _ := proxyURL.User.Password()
		proxyAuth := &proxy.Auth{User: username, Password: password}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", proxyURL.Host, proxyAuth, proxy.Direct)
		if errSOCKS5 != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errSOCKS5)
			return httpClient
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	if transport != nil {
		httpClient.Transport = transport
	}
	return httpClient
}
