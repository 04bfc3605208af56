// ABOUTME: mDNS service discovery package
// ABOUTME: Announce sinks and find them by name on the local network
// Package discovery announces sinks over mDNS and resolves sink names to
// websocket URLs for sources.
//
// Example:
//
//	m := discovery.NewManager(discovery.Config{})
//	m.Browse()
//	url, err := m.Resolve(ctx, "kitchen")
package discovery
