package arrayclient

import (
	"context"
	"encoding/json"
	"net/url"

	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureerr"
)

type hostV2 struct {
	Name  string   `json:"name"`
	Iqns  []string `json:"iqns"`
	Wwns  []string `json:"wwns"`
}

type hostV1 struct {
	Name string   `json:"name"`
	Iqn  []string `json:"iqn"`
	Wwn  []string `json:"wwn"`
}

func (h hostV2) toModel() model.Host { return model.Host{Name: h.Name, IQNs: h.Iqns, WWNs: h.Wwns} }
func (h hostV1) toModel() model.Host { return model.Host{Name: h.Name, IQNs: h.Iqn, WWNs: h.Wwn} }

// GetHost looks up a single host by name.
func (c *Client) GetHost(ctx context.Context, name string) (model.Host, bool, error) {
	if c.dialectVersion() == "2" {
		raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/hosts", nil,
			doOpts{query: namesQuery(name), notFoundOK: true})
		if err != nil {
			return model.Host{}, false, annotate(err, name)
		}
		if status == 404 {
			return model.Host{}, false, nil
		}
		var env v2Envelope[hostV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.Host{}, false, nil
		}
		return env.Items[0].toModel(), true, nil
	}

	raw, status, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(name), nil,
		doOpts{notFoundOK: true})
	if err != nil {
		return model.Host{}, false, annotate(err, name)
	}
	if status == 404 {
		return model.Host{}, false, nil
	}
	var h hostV1
	if err := json.Unmarshal(raw, &h); err != nil {
		return model.Host{}, false, nil
	}
	return h.toModel(), true, nil
}

// ListHosts lists hosts whose name matches globPrefix.
func (c *Client) ListHosts(ctx context.Context, globPrefix string) ([]model.Host, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/hosts", nil,
			doOpts{query: filterQuery("name='" + globPrefix + "*'")})
		if err != nil {
			return nil, err
		}
		var env v2Envelope[hostV2]
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pureerr.New(pureerr.KindTransient, "list_hosts", err)
		}
		out := make([]model.Host, 0, len(env.Items))
		for _, h := range env.Items {
			out = append(out, h.toModel())
		}
		return out, nil
	}

	raw, _, err := c.do(ctx, "GET", "/api/"+c.versionedSegment()+"/host", nil, doOpts{})
	if err != nil {
		return nil, err
	}
	var hosts []hostV1
	if err := json.Unmarshal(raw, &hosts); err != nil {
		return nil, pureerr.New(pureerr.KindTransient, "list_hosts", err)
	}
	out := make([]model.Host, 0, len(hosts))
	for _, h := range hosts {
		if hasPrefixLocal(h.Name, globPrefix) {
			out = append(out, h.toModel())
		}
	}
	return out, nil
}

// CreateHost registers a new, initially initiator-less host object.
func (c *Client) CreateHost(ctx context.Context, name string) (model.Host, error) {
	if c.dialectVersion() == "2" {
		raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/hosts", map[string]interface{}{},
			doOpts{query: namesQuery(name)})
		if err != nil {
			return model.Host{}, annotate(err, name)
		}
		var env v2Envelope[hostV2]
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Items) == 0 {
			return model.Host{}, pureerr.New(pureerr.KindTransient, "create_host", err).WithHost(name)
		}
		return env.Items[0].toModel(), nil
	}

	raw, _, err := c.do(ctx, "POST", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(name), nil, doOpts{})
	if err != nil {
		return model.Host{}, annotate(err, name)
	}
	var h hostV1
	if err := json.Unmarshal(raw, &h); err != nil {
		return model.Host{}, pureerr.New(pureerr.KindTransient, "create_host", err).WithHost(name)
	}
	return h.toModel(), nil
}

// GetOrCreateHost fetches an existing host, or creates one, tolerating a
// benign race where a concurrent node creates it between the two calls.
func (c *Client) GetOrCreateHost(ctx context.Context, name string) (model.Host, error) {
	if h, ok, err := c.GetHost(ctx, name); err != nil {
		return model.Host{}, err
	} else if ok {
		return h, nil
	}

	h, err := c.CreateHost(ctx, name)
	if err == nil {
		return h, nil
	}
	if pureerr.IsConflict(err) {
		if existing, ok, getErr := c.GetHost(ctx, name); getErr == nil && ok {
			return existing, nil
		}
	}
	return model.Host{}, err
}

// AddInitiator registers iqnOrWwn on host. v2 must read-modify-write the
// full initiator list since PATCH /hosts replaces it wholesale; v1 has a
// dedicated addiqnlist/addwwnlist endpoint.
func (c *Client) AddInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error {
	if c.dialectVersion() == "2" {
		h, ok, err := c.GetHost(ctx, hostName)
		if err != nil {
			return err
		}
		if !ok {
			return pureerr.New(pureerr.KindNotFound, "add_initiator", nil).WithHost(hostName)
		}
		var body map[string]interface{}
		if isIQN {
			body = map[string]interface{}{"iqns": appendUnique(h.IQNs, iqnOrWwn)}
		} else {
			body = map[string]interface{}{"wwns": appendUnique(h.WWNs, iqnOrWwn)}
		}
		_, _, err = c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/hosts", body, doOpts{query: namesQuery(hostName)})
		return annotate(err, hostName)
	}

	action := "addiqnlist"
	if !isIQN {
		action = "addwwnlist"
	}
	body := map[string]interface{}{action: []string{iqnOrWwn}}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(hostName), body, doOpts{})
	return annotate(err, hostName)
}

// RemoveInitiator is the inverse of AddInitiator.
func (c *Client) RemoveInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error {
	if c.dialectVersion() == "2" {
		h, ok, err := c.GetHost(ctx, hostName)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		var body map[string]interface{}
		if isIQN {
			body = map[string]interface{}{"iqns": removeOne(h.IQNs, iqnOrWwn)}
		} else {
			body = map[string]interface{}{"wwns": removeOne(h.WWNs, iqnOrWwn)}
		}
		_, _, err = c.do(ctx, "PATCH", "/api/"+c.versionedSegment()+"/hosts", body, doOpts{query: namesQuery(hostName)})
		return annotate(err, hostName)
	}

	action := "remiqnlist"
	if !isIQN {
		action = "remwwnlist"
	}
	body := map[string]interface{}{action: []string{iqnOrWwn}}
	_, _, err := c.do(ctx, "PUT", "/api/"+c.versionedSegment()+"/host/"+url.PathEscape(hostName), body, doOpts{})
	return annotate(err, hostName)
}

func appendUnique(existing []string, add string) []string {
	for _, e := range existing {
		if equalFold(e, add) {
			return existing
		}
	}
	out := make([]string, len(existing), len(existing)+1)
	copy(out, existing)
	return append(out, add)
}

func removeOne(existing []string, remove string) []string {
	out := make([]string, 0, len(existing))
	for _, e := range existing {
		if !equalFold(e, remove) {
			out = append(out, e)
		}
	}
	return out
}
