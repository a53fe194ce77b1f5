// Package discovery finds the controller on the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the mDNS service type the controller advertises.
	Service = "_mtu._tcp"
	domain  = "local."
)

var ErrNotFound = errors.New("no device found")

// Browse returns the base URL of the first device advertising service, or
// ErrNotFound once ctx is done.
func Browse(ctx context.Context, service string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			if base, ok := BaseURL(entry); ok {
				log.Printf("mDNS discovered device: %s at %s", entry.Instance, base)
				select {
				case found <- base:
				default:
				}
				cancel()
			}
		}
	}(entries)

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return "", fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case base := <-found:
		return base, nil
	case <-ctx.Done():
	}
	select {
	case base := <-found:
		return base, nil
	default:
		return "", ErrNotFound
	}
}

// BaseURL builds http://<ipv4>:<port> from an mDNS entry.
func BaseURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 || entry.Port <= 0 {
		return "", false
	}
	host := net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))
	return "http://" + host, true
}

// Advertise registers a device under instance until the returned function
// is called.
func Advertise(instance, service string, port int) (func(), error) {
	server, err := zeroconf.Register(instance, service, domain, port, []string{"txtv=0", "path=/api"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	log.Printf("mDNS service registered: %s on port %d", service, port)
	return server.Shutdown, nil
}
