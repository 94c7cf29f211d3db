// Package mdns advertises the review server on the local network so that a
// reviewer's browser or companion app can find it without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service type of the review server.
	ServiceType = "_geopro._tcp"

	// APIVersion is advertised in the TXT records.
	APIVersion = "v1"
)

// Advertisement describes what is published in the TXT records.
type Advertisement struct {
	Name    string
	Version string
	// Sessions is the number of sessions waiting for review.
	Sessions int
}

func (a Advertisement) txt() []string {
	return []string{
		"name=" + a.Name,
		"version=" + a.Version,
		"api=" + APIVersion,
		fmt.Sprintf("sessions=%d", a.Sessions),
		"path=/api/v1",
	}
}

// Service manages the advertisement.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Start advertises the server on port, replacing a running advertisement.
// Errors are usually environmental (no multicast in containers) and may be
// treated as non-fatal.
func (s *Service) Start(ad Advertisement, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "geopro"
	}

	zone, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, ad.txt())
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}
	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", ad.Name,
	)
	return nil
}

// Stop stops advertising. Safe to call multiple times.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}
