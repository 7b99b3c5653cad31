package config

import (
	"fmt"
	"time"
)

const (
	// DefaultHistoryCap is the hard cap on stored messages per room.
	DefaultHistoryCap = 200
	// DefaultHistoryRetain is the window kept after the cap is exceeded.
	DefaultHistoryRetain = 150
	// DefaultHistoryLimit is the number of messages sent on join.
	DefaultHistoryLimit = 50
	// DefaultPurgeDelay is how long an offline user record is retained
	// before it is purged, to tolerate transient reconnects.
	DefaultPurgeDelay = 30 * time.Second
)

var DefaultRooms = []string{"general", "random", "tech", "support"}

type Config struct {
	ServerAddr     string
	Rooms          []string
	AllowedOrigins []string
	HistoryCap     int
	HistoryRetain  int
	HistoryLimit   int
	PurgeDelay     time.Duration
}

func NewConfig(serverAddr string, rooms, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("at least one room must be configured")
	}

	seen := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		if room == "" {
			return nil, fmt.Errorf("room name cannot be empty")
		}
		if _, ok := seen[room]; ok {
			return nil, fmt.Errorf("duplicate room name %q", room)
		}
		seen[room] = struct{}{}
	}

	return &Config{
		ServerAddr:     serverAddr,
		Rooms:          rooms,
		AllowedOrigins: allowedOrigins,
		HistoryCap:     DefaultHistoryCap,
		HistoryRetain:  DefaultHistoryRetain,
		HistoryLimit:   DefaultHistoryLimit,
		PurgeDelay:     DefaultPurgeDelay,
	}, nil
}
