package arrayclient

import (
	"context"
	"encoding/json"
	"net/url"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureerr"
)

type snapshotV2 struct {
	Name    string `json:"name"`
	Source  struct{ Name string `json:"name"` } `json:"source"`
	Suffix  string `json:"suffix"`
	Created int64  `json:"created"`
}

type snapshotV1 struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Suffix  string `json:"suffix"`
	Created string `json:"created"`
}

// CreateSnapshot takes a point-in-time snapshot of volumeName with the given
// suffix (the bare "pve-snap-..." or "pve-base" tag, not the full dotted
// name), returning the full "volume.suffix" array name.
func (c *Client) CreateSnapshot(ctx context.Context, volumeName, suffix string) (model.ArraySnapshot, error) {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"suffix": suffix}
		raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volume-snapshots", body,
			doOpts{query: namesQuery(volumeName)})
		if err != nil {
			return model.ArraySnapshot{}, annotate(err, volumeName)
		}
		var env v2Envelope[snapshotV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.ArraySnapshot{}, pureerr.New(pureerr.KindTransient, "create_snapshot", err).WithVolume(volumeName)
		}
		return model.ArraySnapshot{VolumeName: volumeName, Suffix: suffix, Created: epochMillisToTime(env.Items[0].Created)}, nil
	}

	body := map[string]interface{}{"snap": true, "suffix": suffix}
	raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(volumeName), body, doOpts{})
	if err != nil {
		return model.ArraySnapshot{}, annotate(err, volumeName)
	}
	var v snapshotV1
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.ArraySnapshot{}, pureerr.New(pureerr.KindTransient, "create_snapshot", err).WithVolume(volumeName)
	}
	return model.ArraySnapshot{VolumeName: volumeName, Suffix: suffix, Created: parseV1Timestamp(v.Created)}, nil
}

// GetSnapshot looks up a single snapshot by its full "volume.suffix" name.
func (c *Client) GetSnapshot(ctx context.Context, fullName string) (model.ArraySnapshot, bool, error) {
	if c.dialectVersion() == "2" {
		raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume-snapshots", nil,
			doOpts{query: namesQuery(fullName), notFoundOK: true})
		if err != nil {
			return model.ArraySnapshot{}, false, annotate(err, fullName)
		}
		if status == 404 {
			return model.ArraySnapshot{}, false, nil
		}
		var env v2Envelope[snapshotV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.ArraySnapshot{}, false, nil
		}
		item := env.Items[0]
		return model.ArraySnapshot{VolumeName: item.Source.Name, Suffix: item.Suffix, Created: epochMillisToTime(item.Created)}, true, nil
	}

	raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(fullName), nil,
		doOpts{query: url.Values{"snap": []string{"true"}}, notFoundOK: true})
	if err != nil {
		return model.ArraySnapshot{}, false, annotate(err, fullName)
	}
	if status == 404 {
		return model.ArraySnapshot{}, false, nil
	}
	var v snapshotV1
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.ArraySnapshot{}, false, nil
	}
	return model.ArraySnapshot{VolumeName: v.Source, Suffix: v.Suffix, Created: parseV1Timestamp(v.Created)}, true, nil
}

// ListSnapshots lists snapshots of volumeName.
func (c *Client) ListSnapshots(ctx context.Context, volumeName string) ([]model.ArraySnapshot, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume-snapshots", nil,
			doOpts{query: namesQuery(volumeName + ".*")})
		if err != nil {
			return nil, annotate(err, volumeName)
		}
		var env v2Envelope[snapshotV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_snapshots", err)
		}
		out := make([]model.ArraySnapshot, 0, len(env.Items))
		for _, s := range env.Items {
			out = append(out, model.ArraySnapshot{VolumeName: s.Source.Name, Suffix: s.Suffix, Created: epochMillisToTime(s.Created)})
		}
		return out, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(volumeName), nil,
		doOpts{query: url.Values{"snap": []string{"true"}}})
	if err != nil {
		return nil, annotate(err, volumeName)
	}
	var snaps []snapshotV1
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_snapshots", err)
	}
	out := make([]model.ArraySnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, model.ArraySnapshot{VolumeName: s.Source, Suffix: s.Suffix, Created: parseV1Timestamp(s.Created)})
	}
	return out, nil
}

// ListTemplateMarkers lists every "*.pve-base" snapshot whose volume name
// starts with prefix, in one request instead of one per volume — the
// storage-wide counterpart to ListSnapshots, for callers (listing) that only
// need to know which volumes are templates.
func (c *Client) ListTemplateMarkers(ctx context.Context, prefix string) ([]model.ArraySnapshot, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume-snapshots", nil,
			doOpts{query: namesQuery(prefix + "*.pve-base")})
		if err != nil {
			return nil, annotate(err, prefix)
		}
		var env v2Envelope[snapshotV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_template_markers", err)
		}
		out := make([]model.ArraySnapshot, 0, len(env.Items))
		for _, s := range env.Items {
			out = append(out, model.ArraySnapshot{VolumeName: s.Source.Name, Suffix: s.Suffix, Created: epochMillisToTime(s.Created)})
		}
		return out, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/volume", nil,
		doOpts{query: url.Values{"snap": []string{"true"}}})
	if err != nil {
		return nil, annotate(err, prefix)
	}
	var snaps []snapshotV1
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_template_markers", err)
	}
	out := make([]model.ArraySnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Suffix == "pve-base" && hasPrefixLocal(s.Source, prefix) {
			out = append(out, model.ArraySnapshot{VolumeName: s.Source, Suffix: s.Suffix, Created: parseV1Timestamp(s.Created)})
		}
	}
	return out, nil
}

// DestroySnapshot performs the first phase of the two-phase delete: mark the
// snapshot destroyed (soft delete, recoverable by clearing destroyed again
// before eradication).
func (c *Client) DestroySnapshot(ctx context.Context, fullName string) error {
	if c.dialectVersion() == "2" {
		body := map[string]interface{}{"destroyed": true}
		_, _, err := c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/volume-snapshots", body,
			doOpts{query: namesQuery(fullName), notFoundOK: true})
		return annotate(err, fullName)
	}
	body := map[string]interface{}{"destroyed": true}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(fullName), body,
		doOpts{notFoundOK: true})
	return annotate(err, fullName)
}

// EradicateSnapshot permanently removes an already-destroyed snapshot.
func (c *Client) EradicateSnapshot(ctx context.Context, fullName string) error {
	if c.dialectVersion() == "2" {
		_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/volume-snapshots", nil,
			doOpts{query: namesQuery(fullName), notFoundOK: true})
		return annotate(err, fullName)
	}
	_, _, err := c.do(ctx, "DELETE", "/api/"+c.versionedSegment()+"/volume/"+url.PathEscape(fullName), nil,
		doOpts{notFoundOK: true})
	return annotate(err, fullName)
}
