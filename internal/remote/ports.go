package remote

import (
	"context"
	"net/http"
)

// Port is one discovered communication endpoint.
type Port struct {
	Address  string `json:"address"`  // e.g. /dev/ttyACM0
	Protocol string `json:"protocol"` // e.g. serial
	Label    string `json:"label"`    // human-readable name
	Board    string `json:"board"`    // detected board fqbn, if any
}

// PortsClient talks to the port discovery service.
type PortsClient struct {
	c *Client
}

// NewPortsClient builds a client for the discovery service at base.
func NewPortsClient(base string) *PortsClient {
	return &PortsClient{c: NewClient(base, nil)}
}

// portsEnvelope wraps the discovery response.
type portsEnvelope struct {
	Success bool   `json:"success"`
	Ports   []Port `json:"ports"`
	Error   string `json:"error"`
}

// List returns the currently attached endpoints.
func (pc *PortsClient) List(ctx context.Context) ([]Port, error) {
	var env portsEnvelope
	if err := pc.c.doJSON(ctx, "ports", http.MethodGet, "/ports", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &RemoteError{Op: "ports", Detail: firstNonEmpty(env.Error, "port discovery failed")}
	}
	return env.Ports, nil
}
