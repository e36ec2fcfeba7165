package arrayclient

import (
	"context"
	"encoding/json"
	"net/url"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureerr"
)

type connectionV2 struct {
	Host   struct{ Name string `json:"name"` } `json:"host"`
	Volume struct{ Name string `json:"name"` } `json:"volume"`
	LUN    int `json:"lun"`
}

type connectionV1 struct {
	Host string `json:"host"`
	Name string `json:"name"`
	LUN  int    `json:"lun"`
}

// Connect attaches volumeName to hostName, returning the assigned LUN.
// "already connected" is treated as success by the caller via
// pureerr.IsConflict, not here — this method surfaces the array's response
// verbatim so the orchestrator can decide idempotence policy per call site.
func (c *Client) Connect(ctx context.Context, hostName, volumeName string) (int, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/connections", map[string]interface{}{},
			doOpts{query: url.Values{"host_names": {hostName}, "volume_names": {volumeName}}})
		if err != nil {
			return 0, annotateConn(err, hostName, volumeName)
		}
		var env v2Envelope[connectionV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return 0, pureerr.New(pureerr.KindTransient, "connect", err).WithHost(hostName).WithVolume(volumeName)
		}
		return env.Items[0].LUN, nil
	}

	raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(hostName)+"/volume/"+url.PathEscape(volumeName),
		nil, doOpts{})
	if err != nil {
		return 0, annotateConn(err, hostName, volumeName)
	}
	var conn connectionV1
	if err := json.Unmarshal(raw, &conn); err != nil {
		return 0, pureerr.New(pureerr.KindTransient, "connect", err).WithHost(hostName).WithVolume(volumeName)
	}
	return conn.LUN, nil
}

// Disconnect detaches volumeName from hostName. Not-found is not an error:
// callers treat it as "already disconnected".
func (c *Client) Disconnect(ctx context.Context, hostName, volumeName string) error {
	if c.dialectVersion() == "2" {
		_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/connections", nil,
			doOpts{query: url.Values{"host_names": {hostName}, "volume_names": {volumeName}}, notFoundOK: true})
		return annotateConn(err, hostName, volumeName)
	}

	_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(hostName)+"/volume/"+url.PathEscape(volumeName),
		nil, doOpts{notFoundOK: true})
	return annotateConn(err, hostName, volumeName)
}

// ListConnections lists a volume's current host connections.
func (c *Client) ListConnections(ctx context.Context, volumeName string) ([]model.Connection, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/connections", nil,
			doOpts{query: url.Values{"volume_names": {volumeName}}})
		if err != nil {
			return nil, annotate(err, volumeName)
		}
		var env v2Envelope[connectionV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_connections", err)
		}
		out := make([]model.Connection, 0, len(env.Items))
		for _, item := range env.Items {
			out = append(out, model.Connection{HostName: item.Host.Name, VolumeName: item.Volume.Name})
		}
		return out, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(volumeName)+"/host", nil, doOpts{})
	if err != nil {
		return nil, annotate(err, volumeName)
	}
	var conns []connectionV1
	if err := json.Unmarshal(raw, &conns); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_connections", err)
	}
	out := make([]model.Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, model.Connection{HostName: conn.Host, VolumeName: conn.Name})
	}
	return out, nil
}

func annotateConn(err error, host, volume string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*pureerr.Error); ok {
		return e.WithHost(host).WithVolume(volume)
	}
	return err
}
