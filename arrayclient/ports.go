package arrayclient

import (
	"context"
	"encoding/json"

	"purearray-pve-plugin/pureerr"
)

// ISCSIPort describes one array-side iSCSI target portal.
type ISCSIPort struct {
	Name    string `json:"name"`
	IQN     string `json:"iqn"`
	Portal  string `json:"portal"`
}

// FCPort describes one array-side FC target port.
type FCPort struct {
	Name string `json:"name"`
	WWN  string `json:"wwn"`
}

type portV2 struct {
	Name   string `json:"name"`
	Iqn    string `json:"iqn"`
	Portal string `json:"portal"`
	Wwn    string `json:"wwn"`
}

type portV1 struct {
	Name   string `json:"name"`
	Iqn    string `json:"iqn"`
	Portal string `json:"portal"`
	Wwn    string `json:"wwn"`
}

// ListISCSIPorts lists the array's iSCSI target portals.
func (c *Client) ListISCSIPorts(ctx context.Context) ([]ISCSIPort, error) {
	ports, err := c.listPorts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ISCSIPort, 0, len(ports))
	for _, p := range ports {
		if p.Iqn != "" {
			out = append(out, ISCSIPort{Name: p.Name, IQN: p.Iqn, Portal: p.Portal})
		}
	}
	return out, nil
}

// ListFCPorts lists the array's FC target ports.
func (c *Client) ListFCPorts(ctx context.Context) ([]FCPort, error) {
	ports, err := c.listPorts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FCPort, 0, len(ports))
	for _, p := range ports {
		if p.Wwn != "" {
			out = append(out, FCPort{Name: p.Name, WWN: p.Wwn})
		}
	}
	return out, nil
}

func (c *Client) listPorts(ctx context.Context) ([]portV2, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/ports", nil, doOpts{})
		if err != nil {
			return nil, err
		}
		var env v2Envelope[portV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_ports", err)
		}
		return env.Items, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/port", nil, doOpts{})
	if err != nil {
		return nil, err
	}
	var v1ports []portV1
	if err := json.Unmarshal(raw, &v1ports); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_ports", err)
	}
	out := make([]portV2, 0, len(v1ports))
	for _, p := range v1ports {
		out = append(out, portV2{Name: p.Name, Iqn: p.Iqn, Portal: p.Portal, Wwn: p.Wwn})
	}
	return out, nil
}
