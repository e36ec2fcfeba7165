package arrayclient

import (
	"context"
	"encoding/json"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureerr"
)

type arrayInfoV2 struct {
	Name  string `json:"name"`
	Space struct {
		TotalPhysical   int64 `json:"total_physical"`
		TotalProvisioned int64 `json:"total_provisioned"`
		UsedProvisioned  int64 `json:"used_provisioned"`
	} `json:"space"`
}

type arrayInfoV1 struct {
	ArrayName string `json:"array_name"`
	Capacity  int64  `json:"capacity"`
}

// Ping verifies array reachability with the cheapest call available: a GET
// of array info. Used by activate_storage's precondition check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ArrayInfo(ctx)
	return err
}

// ArrayInfo returns the array's identity and space utilization.
func (c *Client) ArrayInfo(ctx context.Context) (model.Capacity, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/arrays", nil, doOpts{})
		if err != nil {
			return model.Capacity{}, err
		}
		var env v2Envelope[arrayInfoV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.Capacity{}, pureerr.New(pureerr.KindTransient, "array_info", err)
		}
		a := env.Items[0]
		return model.Capacity{
			TotalBytes:       a.Space.TotalPhysical,
			UsedBytes:        a.Space.UsedProvisioned,
			ProvisionedBytes: a.Space.TotalProvisioned,
		}, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/array", nil, doOpts{})
	if err != nil {
		return model.Capacity{}, err
	}
	var a arrayInfoV1
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Capacity{}, pureerr.New(pureerr.KindTransient, "array_info", err)
	}
	return model.Capacity{TotalBytes: a.Capacity}, nil
}

type podV2 struct {
	Name  string `json:"name"`
	Space struct {
		TotalPhysical int64 `json:"total_physical"`
	} `json:"space"`
}

// GetPod looks up a pod by name (v2 only; v1 arrays predate ActiveCluster
// pods and always operate without pod qualification).
func (c *Client) GetPod(ctx context.Context, name string) (model.Capacity, bool, error) {
	if c.dialectVersion() != "2" {
		return model.Capacity{}, false, nil
	}
	raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/pods", nil,
		doOpts{query: namesQuery(name), notFoundOK: true})
	if err != nil {
		return model.Capacity{}, false, err
	}
	if status == 404 {
		return model.Capacity{}, false, nil
	}
	var env v2Envelope[podV2]
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
		return model.Capacity{}, false, nil
	}
	return model.Capacity{TotalBytes: env.Items[0].Space.TotalPhysical}, true, nil
}
