// Package server is the HTTP/websocket front door: NIP-01 websocket upgrade,
// NIP-11 relay information document, and a small REST surface for
// submitting events outside a persistent socket. Grounded on the teacher's
// app/relay Server (ServeHTTP dispatch on Upgrade/Accept headers,
// rs/cors-wrapped http.Server, net.Listen/Serve/Shutdown lifecycle).
package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"knotrelay.dev/log"
	"knotrelay.dev/version"
)

// relayInfo is the NIP-11 document shape.
type relayInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Pubkey        string   `json:"pubkey,omitempty"`
	Contact       string   `json:"contact,omitempty"`
	SupportedNIPs []int  `json:"supported_nips"`
	Software      string `json:"software"`
	Version       string `json:"version"`
	Limitation    limits `json:"limitation"`
}

type limits struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxFilters       int  `json:"max_filters,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	AuthRequired     bool `json:"auth_required"`
	RestrictedWrites bool `json:"restricted_writes,omitempty"`
}

// supportedNIPs lists the NIPs this relay implements, per spec.md's
// module set: NIP-01 (core), NIP-09 (deletion), NIP-11 (this document),
// NIP-33 (parameterized replaceable events), NIP-40 (expiration), NIP-42
// (authentication).
var supportedNIPs = []int{1, 9, 11, 33, 40, 42}

func (s *Server) handleRelayInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/nostr+json")
	sorted := append([]int(nil), supportedNIPs...)
	sort.Ints(sorted)
	info := relayInfo{
		Name:          s.cfg.AppName,
		Description:   version.Description,
		SupportedNIPs: sorted,
		Software:      version.URL,
		Version:       version.V,
		Limitation: limits{
			MaxMessageLength: s.cfg.MaxEventBytes,
			MaxSubscriptions: s.cfg.MaxSubscriptions,
			MaxFilters:       s.cfg.MaxFilters,
			MaxLimit:         s.cfg.MaxQueryLimit,
			AuthRequired:     s.cfg.AuthRequired,
		},
	}
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.E.F("encoding relay info: %v", err)
	}
}
