package arrayclient

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureerr"
)

// volumeV2 mirrors the v2 dialect's volume resource shape. Only the fields
// this client consumes are declared; the array returns considerably more.
type volumeV2 struct {
	Name        string `json:"name"`
	Serial      string `json:"serial"`
	Provisioned int64  `json:"provisioned"`
	Space       struct {
		TotalPhysical int64 `json:"total_physical"`
	} `json:"space"`
	Destroyed bool   `json:"destroyed"`
	Created   int64  `json:"created"`
	Pod       *struct{ Name string `json:"name"` } `json:"pod"`
}

// volumeV1 mirrors the v1 dialect's flatter volume shape.
type volumeV1 struct {
	Name      string `json:"name"`
	Serial    string `json:"serial"`
	Size      int64  `json:"size"`
	Volumes   int64  `json:"volumes"` // used space, v1 naming
	Destroyed bool   `json:"destroyed"`
	Created   string `json:"created"`
}

func (v volumeV2) toModel() model.ArrayVolume {
	pod := ""
	if v.Pod != nil {
		pod = v.Pod.Name
	}
	return model.ArrayVolume{
		Name:        v.Name,
		Pod:         pod,
		Provisioned: v.Provisioned,
		Used:        v.Space.TotalPhysical,
		Serial:      v.Serial,
		Destroyed:   v.Destroyed,
		Created:     epochMillisToTime(v.Created),
	}
}

func (v volumeV1) toModel() model.ArrayVolume {
	return model.ArrayVolume{
		Name:        v.Name,
		Provisioned: v.Size,
		Used:        v.Volumes,
		Serial:      v.Serial,
		Destroyed:   v.Destroyed,
		Created:     parseV1Timestamp(v.Created),
	}
}

// epochMillisToTime converts the v2 dialect's "created" field (milliseconds
// since the Unix epoch) to a time.Time, or the zero time if unset.
func epochMillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// parseV1Timestamp parses the v1 dialect's RFC3339 "created" string,
// returning the zero time on any parse failure rather than erroring the
// whole call over a cosmetic field.
func parseV1Timestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateVolume creates a volume of the given size (bytes). qualifiedName is
// already pod-qualified ("pod::name") by the caller when relevant.
func (c *Client) CreateVolume(ctx context.Context, qualifiedName string, sizeBytes int64) (model.ArrayVolume, error) {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"provisioned": sizeBytes}
		raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(qualifiedName)})
		if err != nil {
			return model.ArrayVolume{}, annotate(err, qualifiedName)
		}
		var env v2Envelope[volumeV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.ArrayVolume{}, pureerr.New(pureerr.KindTransient, "create_volume", err).WithVolume(qualifiedName)
		}
		return env.Items[0].toModel(), nil
	}

	body := map[string]interface{}{"size": sizeBytes}
	raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), body, doOpts{})
	if err != nil {
		return model.ArrayVolume{}, annotate(err, qualifiedName)
	}
	var v volumeV1
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.ArrayVolume{}, pureerr.New(pureerr.KindTransient, "create_volume", err).WithVolume(qualifiedName)
	}
	return v.toModel(), nil
}

// GetVolume returns (volume, true, nil) if it exists, (zero, false, nil) if
// it does not, or (zero, false, err) on any other failure.
func (c *Client) GetVolume(ctx context.Context, qualifiedName string) (model.ArrayVolume, bool, error) {
	if c.dialectVersion() == "2" {
		raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volumes", nil,
			doOpts{query: namesQuery(qualifiedName), notFoundOK: true})
		if err != nil {
			return model.ArrayVolume{}, false, annotate(err, qualifiedName)
		}
		if status == 404 {
			return model.ArrayVolume{}, false, nil
		}
		var env v2Envelope[volumeV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.ArrayVolume{}, false, nil
		}
		return env.Items[0].toModel(), true, nil
	}

	raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), nil,
		doOpts{notFoundOK: true})
	if err != nil {
		return model.ArrayVolume{}, false, annotate(err, qualifiedName)
	}
	if status == 404 {
		return model.ArrayVolume{}, false, nil
	}
	var v volumeV1
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.ArrayVolume{}, false, nil
	}
	return v.toModel(), true, nil
}

// ListVolumes lists volumes whose name matches globPrefix* within pod
// (v2 uses a server-side filter; v1 lists everything and filters locally).
func (c *Client) ListVolumes(ctx context.Context, globPrefix string, includeDestroyed bool) ([]model.ArrayVolume, error) {
	if c.dialectVersion() == "2" {
		q := filterQuery("name='" + globPrefix + "*'")
		if includeDestroyed {
			q.Set("destroyed", "true")
		}
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volumes", nil, doOpts{query: q})
		if err != nil {
			return nil, annotate(err, globPrefix)
		}
		var env v2Envelope[volumeV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_volumes", err)
		}
		out := make([]model.ArrayVolume, 0, len(env.Items))
		for _, v := range env.Items {
			out = append(out, v.toModel())
		}
		return out, nil
	}

	q := url.Values{}
	if includeDestroyed {
		q.Set("destroyed", "true")
	}
	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume", nil, doOpts{query: q})
	if err != nil {
		return nil, annotate(err, globPrefix)
	}
	var vols []volumeV1
	if err := json.Unmarshal(raw, &vols); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_volumes", err)
	}
	out := make([]model.ArrayVolume, 0, len(vols))
	for _, v := range vols {
		if hasPrefixLocal(v.Name, globPrefix) {
			out = append(out, v.toModel())
		}
	}
	return out, nil
}

func hasPrefixLocal(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

// ResizeVolume grows or shrinks a volume's provisioned size.
func (c *Client) ResizeVolume(ctx context.Context, qualifiedName string, sizeBytes int64) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"provisioned": sizeBytes}
		_, _, err := c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(qualifiedName)})
		return annotate(err, qualifiedName)
	}
	body := map[string]interface{}{"size": sizeBytes}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), body, doOpts{})
	return annotate(err, qualifiedName)
}

// RenameVolume renames a volume in place.
func (c *Client) RenameVolume(ctx context.Context, oldName, newName string) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"name": newName}
		_, _, err := c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(oldName)})
		return annotate(err, oldName)
	}
	body := map[string]interface{}{"name": newName}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(oldName), body, doOpts{})
	return annotate(err, oldName)
}

// CloneVolume creates destName as a full copy of sourceName.
func (c *Client) CloneVolume(ctx context.Context, sourceName, destName string) (model.ArrayVolume, error) {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"source": map[string]string{"name": sourceName}}
		raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(destName)})
		if err != nil {
			return model.ArrayVolume{}, annotate(err, destName)
		}
		var env v2Envelope[volumeV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.ArrayVolume{}, pureerr.New(pureerr.KindTransient, "clone_volume", err).WithVolume(destName)
		}
		return env.Items[0].toModel(), nil
	}

	body := map[string]interface{}{"source": sourceName}
	raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(destName), body, doOpts{})
	if err != nil {
		return model.ArrayVolume{}, annotate(err, destName)
	}
	var v volumeV1
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.ArrayVolume{}, pureerr.New(pureerr.KindTransient, "clone_volume", err).WithVolume(destName)
	}
	return v.toModel(), nil
}

// OverwriteFromSnapshot restores volumeName's contents from snapshotFullName
// in place (rollback).
func (c *Client) OverwriteFromSnapshot(ctx context.Context, volumeName, snapshotFullName string) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"source": map[string]string{"name": snapshotFullName}}
		_, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: url.Values{"names": {volumeName}, "overwrite": {"true"}}})
		return annotate(err, volumeName)
	}
	body := map[string]interface{}{"source": snapshotFullName, "overwrite": true}
	_, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(volumeName), body, doOpts{})
	return annotate(err, volumeName)
}

// DestroyVolume performs the first phase of the two-phase delete: mark the
// volume destroyed (soft delete, recoverable via RecoverVolume).
func (c *Client) DestroyVolume(ctx context.Context, qualifiedName string) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"destroyed": true}
		_, _, err := c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(qualifiedName), notFoundOK: true})
		return annotate(err, qualifiedName)
	}
	body := map[string]interface{}{"destroyed": true}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), body,
		doOpts{notFoundOK: true})
	return annotate(err, qualifiedName)
}

// EradicateVolume permanently removes an already-destroyed volume. Only the
// orchestrator's temp-clone path and Alloc's orphan cleanup (which must free
// a destroyed volume's name for reuse) call this; ordinary deletes stop at
// DestroyVolume.
func (c *Client) EradicateVolume(ctx context.Context, qualifiedName string) error {
	if c.dialectVersion() == "2" {
		_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/volumes", nil,
			doOpts{query: namesQuery(qualifiedName), notFoundOK: true})
		return annotate(err, qualifiedName)
	}
	_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), nil,
		doOpts{notFoundOK: true})
	return annotate(err, qualifiedName)
}

// RecoverVolume undoes DestroyVolume, provided eradication hasn't happened.
func (c *Client) RecoverVolume(ctx context.Context, qualifiedName string) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"destroyed": false}
		_, _, err := c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/volumes", body,
			doOpts{query: namesQuery(qualifiedName)})
		return annotate(err, qualifiedName)
	}
	body := map[string]interface{}{"destroyed": false}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(qualifiedName), body, doOpts{})
	return annotate(err, qualifiedName)
}

// ListDestroyedVolumes lists soft-deleted volumes matching globPrefix, used
// by the orphan-sweep path.
func (c *Client) ListDestroyedVolumes(ctx context.Context, globPrefix string) ([]model.ArrayVolume, error) {
	return c.ListVolumes(ctx, globPrefix, true)
}

func annotate(err error, volume string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*pureerr.Error); ok {
		return e.WithVolume(volume)
	}
	return err
}
