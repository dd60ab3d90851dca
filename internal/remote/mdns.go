package remote

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service advertised by touchx serve.
const ServiceType = "_touchx._tcp"

// Advertise announces the server on the local network under the host name.
// Shut the returned server down to withdraw the announcement.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, []string{"touchx", "path=" + Path})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Discover lists the WebSocket URLs of servers answering within timeout.
func Discover(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []string)
	go func() {
		var urls []string
		seen := map[string]bool{}
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			url := fmt.Sprintf("ws://%s:%d%s", e.AddrV4, e.Port, Path)
			if !seen[url] {
				seen[url] = true
				urls = append(urls, url)
			}
		}
		done <- urls
	}()
	err := mdns.Query(&mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	urls := <-done
	if err != nil {
		return nil, fmt.Errorf("failed to query mDNS: %w", err)
	}
	return urls, nil
}
