package memoryregistry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/io/device"
	"github.com/xpanvictor/voxchat/pkg/io/registry"
)

type mmrRegistry struct {
	mu    sync.RWMutex
	dvMap map[uuid.UUID]map[uuid.UUID]*device.Device
}

// AttachEndpoint implements registry.Registry.
func (m *mmrRegistry) AttachEndpoint(sessionID uuid.UUID, deviceID uuid.UUID, ep device.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionMap := m.dvMap[sessionID]; sessionMap != nil {
		if d := sessionMap[deviceID]; d != nil {
			if d.Endpoints == nil {
				d.Endpoints = make(map[device.EndpointID]device.Endpoint)
			}
			d.Endpoints[ep.ID()] = ep
			return nil
		}
	}
	return fmt.Errorf("couldn't attach endpoint: device %s not registered", deviceID)
}

// DetachEndpoint implements registry.Registry.
func (m *mmrRegistry) DetachEndpoint(sessionID uuid.UUID, deviceID uuid.UUID, ep device.Endpoint) device.EndpointID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.dvMap[sessionID][deviceID]; d != nil {
		delete(d.Endpoints, ep.ID())
	}
	return ep.ID()
}

// FetchTextFanoutEndpoint implements registry.Registry.
func (m *mmrRegistry) FetchTextFanoutEndpoint(sessionID uuid.UUID) ([]device.Endpoint, bool) {
	var eps []device.Endpoint
	for _, ep := range m.ListSessionEndpoints(sessionID) {
		if ep.Caps().TextSink {
			eps = append(eps, ep)
		}
	}
	return eps, len(eps) > 0
}

// ListSessionDevices implements registry.Registry.
func (m *mmrRegistry) ListSessionDevices(sessionID uuid.UUID) []device.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := make([]device.Device, 0, len(m.dvMap[sessionID]))
	for _, d := range m.dvMap[sessionID] {
		cp := *d
		cp.Endpoints = make(map[device.EndpointID]device.Endpoint, len(d.Endpoints))
		for id, ep := range d.Endpoints {
			cp.Endpoints[id] = ep
		}
		devices = append(devices, cp)
	}
	return devices
}

// ListSessionEndpoints implements registry.Registry.
func (m *mmrRegistry) ListSessionEndpoints(sessionID uuid.UUID) []device.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var eps []device.Endpoint
	for _, d := range m.dvMap[sessionID] {
		for _, ep := range d.Endpoints {
			eps = append(eps, ep)
		}
	}
	return eps
}

// RemoveDevice implements registry.Registry.
func (m *mmrRegistry) RemoveDevice(sessionID uuid.UUID, deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionMap := m.dvMap[sessionID]
	if sessionMap == nil || sessionMap[deviceID] == nil {
		return fmt.Errorf("device %s not registered", deviceID)
	}
	delete(sessionMap, deviceID)
	if len(sessionMap) == 0 {
		delete(m.dvMap, sessionID)
	}
	return nil
}

// SelectEndpointWithMRU implements registry.Registry. Returns the most
// recently active endpoint offering every capability set in want.
func (m *mmrRegistry) SelectEndpointWithMRU(sessionID uuid.UUID, want device.Capabilities) (device.Endpoint, bool) {
	var best device.Endpoint
	for _, ep := range m.ListSessionEndpoints(sessionID) {
		if !satisfies(ep.Caps(), want) {
			continue
		}
		if best == nil || ep.LastActive().After(best.LastActive()) {
			best = ep
		}
	}
	return best, best != nil
}

func satisfies(have, want device.Capabilities) bool {
	return (!want.AudioSink || have.AudioSink) &&
		(!want.AudioSource || have.AudioSource) &&
		(!want.TextSink || have.TextSink)
}

// UpsertDevice implements registry.Registry.
func (m *mmrRegistry) UpsertDevice(sessionID uuid.UUID, d device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionMap := m.dvMap[sessionID]; sessionMap == nil {
		m.dvMap[sessionID] = make(map[uuid.UUID]*device.Device)
	}
	if existing := m.dvMap[sessionID][d.DeviceID]; existing != nil && d.Endpoints == nil {
		d.Endpoints = existing.Endpoints
	}
	d.SessionID = sessionID
	m.dvMap[sessionID][d.DeviceID] = &d
	return nil
}

func New() registry.Registry {
	return &mmrRegistry{
		dvMap: make(map[uuid.UUID]map[uuid.UUID]*device.Device),
	}
}
