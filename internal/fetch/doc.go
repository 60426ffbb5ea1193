// Package fetch provides the suggestion fetch capability used by the crawler.
//
// The crawler depends only on the Fetcher interface: one call turns a
// prefix into the list of suggestions the API returned. Client is the HTTP
// implementation for autocomplete endpoints of the form
// "http://host/v1/autocomplete?query=<prefix>".
//
// # Errors
//
// A rate-limit response (HTTP 429) is reported as a *RateLimitError, which
// matches ErrRateLimited with errors.Is. Every other failure (transport
// error, non-2xx status, malformed body) is a *TransportError. The crawler
// retries the first kind and gives up on the second.
//
// # Proxy
//
// Requests can be routed through a SOCKS5 proxy with WithProxy, for
// example a local Tor daemon at 127.0.0.1:9050.
package fetch
