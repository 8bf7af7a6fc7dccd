// Package realtime tracks which connections listen on which channels.
package realtime

import (
	"sort"
	"sync"
)

// Rooms is a channel -> connection set index with the reverse mapping kept
// alongside so a closing connection can leave everything at once.
type Rooms struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{}
	conns    map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		channels: make(map[string]map[string]struct{}),
		conns:    make(map[string]map[string]struct{}),
	}
}

// Join adds connID to channel. Joining twice is a no-op.
func (r *Rooms) Join(channel, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	add(r.channels, channel, connID)
	add(r.conns, connID, channel)
}

// Leave removes connID from channel.
func (r *Rooms) Leave(channel, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remove(r.channels, channel, connID)
	remove(r.conns, connID, channel)
}

// LeaveAll removes connID from every channel and returns the channels it left.
func (r *Rooms) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := make([]string, 0, len(r.conns[connID]))
	for channel := range r.conns[connID] {
		remove(r.channels, channel, connID)
		left = append(left, channel)
	}
	delete(r.conns, connID)
	sort.Strings(left)
	return left
}

// Drop empties channel and returns the connections that were in it.
func (r *Rooms) Drop(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := make([]string, 0, len(r.channels[channel]))
	for connID := range r.channels[channel] {
		remove(r.conns, connID, channel)
		dropped = append(dropped, connID)
	}
	delete(r.channels, channel)
	sort.Strings(dropped)
	return dropped
}

// Members returns a snapshot of the connections in channel.
func (r *Rooms) Members(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]string, 0, len(r.channels[channel]))
	for connID := range r.channels[channel] {
		members = append(members, connID)
	}
	sort.Strings(members)
	return members
}

// Channels returns the channels connID belongs to.
func (r *Rooms) Channels(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns[connID]))
	for channel := range r.conns[connID] {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

func add(m map[string]map[string]struct{}, key, member string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[member] = struct{}{}
}

func remove(m map[string]map[string]struct{}, key, member string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(m, key)
	}
}
