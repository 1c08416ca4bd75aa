package registry

import (
	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/io/device"
)

type Registry interface {
	// device lifecyle
	UpsertDevice(sessionID uuid.UUID, d device.Device) error
	RemoveDevice(sessionID uuid.UUID, deviceID uuid.UUID) error
	// endpoint lifecycle
	AttachEndpoint(sessionID uuid.UUID, deviceID uuid.UUID, ep device.Endpoint) error
	DetachEndpoint(sessionID uuid.UUID, deviceID uuid.UUID, ep device.Endpoint) device.EndpointID
	// queries
	ListSessionDevices(sessionID uuid.UUID) []device.Device
	ListSessionEndpoints(sessionID uuid.UUID) []device.Endpoint
	// selection
	SelectEndpointWithMRU(sessionID uuid.UUID, want device.Capabilities) (device.Endpoint, bool)
	FetchTextFanoutEndpoint(sessionID uuid.UUID) ([]device.Endpoint, bool)
}
