package orchestrator

import (
	"context"
	"sync"
	"time"

	"purearray-pve-plugin/arrayclient"
	"purearray-pve-plugin/device"
	"purearray-pve-plugin/model"
	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/pureerr"
)

// fakeArray is an in-memory stand-in for arrayclient.Interface, enough to
// drive every orchestrator operation without a real array.
type fakeArray struct {
	mu          sync.Mutex
	volumes     map[string]model.ArrayVolume
	snapshots   map[string]model.ArraySnapshot
	hosts       map[string]model.Host
	connections map[string]map[string]bool // volume -> set of host names
	serialSeq   int

	failPing error
	pod      *model.Capacity
	info     model.Capacity
}

func newFakeArray() *fakeArray {
	return &fakeArray{
		volumes:     map[string]model.ArrayVolume{},
		snapshots:   map[string]model.ArraySnapshot{},
		hosts:       map[string]model.Host{},
		connections: map[string]map[string]bool{},
	}
}

var _ arrayclient.Interface = (*fakeArray)(nil)

func (f *fakeArray) Ping(ctx context.Context) error { return f.failPing }

func (f *fakeArray) ArrayInfo(ctx context.Context) (model.Capacity, error) { return f.info, nil }

func (f *fakeArray) GetPod(ctx context.Context, name string) (model.Capacity, bool, error) {
	if f.pod == nil {
		return model.Capacity{}, false, nil
	}
	return *f.pod, true, nil
}

func (f *fakeArray) CreateVolume(ctx context.Context, qualifiedName string, sizeBytes int64) (model.ArrayVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, local := splitPodForTest(qualifiedName)
	if _, exists := f.volumes[qualifiedName]; exists {
		return model.ArrayVolume{}, pureerr.New(pureerr.KindConflict, "create_volume", nil).WithVolume(local)
	}
	f.serialSeq++
	v := model.ArrayVolume{
		Name:        local,
		Pod:         pod,
		Provisioned: sizeBytes,
		Serial:      padSerial(f.serialSeq),
		Created:     time.Now(),
	}
	f.volumes[qualifiedName] = v
	return v, nil
}

func (f *fakeArray) GetVolume(ctx context.Context, qualifiedName string) (model.ArrayVolume, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[qualifiedName]
	return v, ok, nil
}

func (f *fakeArray) ListVolumes(ctx context.Context, globPrefix string, includeDestroyed bool) ([]model.ArrayVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ArrayVolume
	for qualified, v := range f.volumes {
		if !includeDestroyed && v.Destroyed {
			continue
		}
		_, local := splitPodForTest(qualified)
		if len(globPrefix) > 0 && !hasPrefixForTest(local, globPrefix) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeArray) ResizeVolume(ctx context.Context, qualifiedName string, sizeBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[qualifiedName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "resize_volume", nil)
	}
	v.Provisioned = sizeBytes
	f.volumes[qualifiedName] = v
	return nil
}

func (f *fakeArray) RenameVolume(ctx context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[oldName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "rename_volume", nil)
	}
	delete(f.volumes, oldName)
	_, local := splitPodForTest(newName)
	v.Name = local
	f.volumes[newName] = v
	return nil
}

func (f *fakeArray) CloneVolume(ctx context.Context, sourceName, destName string) (model.ArrayVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var src model.ArrayVolume
	if sv, ok := f.volumes[sourceName]; ok {
		src = sv
	} else if ss, ok := f.snapshots[sourceName]; ok {
		src = f.volumes[ss.VolumeName]
	} else {
		return model.ArrayVolume{}, pureerr.New(pureerr.KindNotFound, "clone_volume", nil)
	}

	f.serialSeq++
	pod, local := splitPodForTest(destName)
	v := model.ArrayVolume{Name: local, Pod: pod, Provisioned: src.Provisioned, Serial: padSerial(f.serialSeq), Created: time.Now()}
	f.volumes[destName] = v
	return v, nil
}

func (f *fakeArray) OverwriteFromSnapshot(ctx context.Context, volumeName, snapshotFullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeName]; !ok {
		return pureerr.New(pureerr.KindNotFound, "overwrite", nil)
	}
	if _, ok := f.snapshots[snapshotFullName]; !ok {
		return pureerr.New(pureerr.KindNotFound, "overwrite", nil)
	}
	return nil
}

func (f *fakeArray) DestroyVolume(ctx context.Context, qualifiedName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[qualifiedName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "destroy_volume", nil)
	}
	v.Destroyed = true
	f.volumes[qualifiedName] = v
	return nil
}

func (f *fakeArray) EradicateVolume(ctx context.Context, qualifiedName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, qualifiedName)
	delete(f.connections, qualifiedName)
	return nil
}

func (f *fakeArray) RecoverVolume(ctx context.Context, qualifiedName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[qualifiedName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "recover_volume", nil)
	}
	v.Destroyed = false
	f.volumes[qualifiedName] = v
	return nil
}

func (f *fakeArray) ListDestroyedVolumes(ctx context.Context, globPrefix string) ([]model.ArrayVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ArrayVolume
	for _, v := range f.volumes {
		if v.Destroyed {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeArray) CreateSnapshot(ctx context.Context, volumeName, suffix string) (model.ArraySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeName]; !ok {
		return model.ArraySnapshot{}, pureerr.New(pureerr.KindNotFound, "create_snapshot", nil)
	}
	_, local := splitPodForTest(volumeName)
	s := model.ArraySnapshot{VolumeName: local, Suffix: suffix, Created: time.Now()}
	f.snapshots[volumeName+"."+suffix] = s
	return s, nil
}

func (f *fakeArray) GetSnapshot(ctx context.Context, fullName string) (model.ArraySnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[fullName]
	return s, ok, nil
}

func (f *fakeArray) ListSnapshots(ctx context.Context, volumeName string) ([]model.ArraySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ArraySnapshot
	for full, s := range f.snapshots {
		if hasPrefixForTest(full, volumeName+".") {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeArray) ListTemplateMarkers(ctx context.Context, prefix string) ([]model.ArraySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ArraySnapshot
	for full, s := range f.snapshots {
		if s.Suffix != "pve-base" {
			continue
		}
		_, local := splitPodForTest(full)
		if hasPrefixForTest(local, prefix) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeArray) DestroySnapshot(ctx context.Context, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[fullName]; !ok {
		return pureerr.New(pureerr.KindNotFound, "destroy_snapshot", nil)
	}
	return nil
}

func (f *fakeArray) EradicateSnapshot(ctx context.Context, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, fullName)
	return nil
}

func (f *fakeArray) GetHost(ctx context.Context, name string) (model.Host, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[name]
	return h, ok, nil
}

func (f *fakeArray) ListHosts(ctx context.Context, globPrefix string) ([]model.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Host
	for name, h := range f.hosts {
		if hasPrefixForTest(name, globPrefix) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeArray) CreateHost(ctx context.Context, name string) (model.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.hosts[name]; exists {
		return model.Host{}, pureerr.New(pureerr.KindConflict, "create_host", nil)
	}
	h := model.Host{Name: name}
	f.hosts[name] = h
	return h, nil
}

func (f *fakeArray) GetOrCreateHost(ctx context.Context, name string) (model.Host, error) {
	f.mu.Lock()
	if h, ok := f.hosts[name]; ok {
		f.mu.Unlock()
		return h, nil
	}
	f.mu.Unlock()
	return f.CreateHost(ctx, name)
}

func (f *fakeArray) AddInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for otherName, h := range f.hosts {
		if otherName == hostName {
			continue
		}
		list := h.IQNs
		if !isIQN {
			list = h.WWNs
		}
		for _, existing := range list {
			if existing == iqnOrWwn {
				return pureerr.New(pureerr.KindConflict, "add_initiator", nil).
					WithHint("initiator already in use by a different host")
			}
		}
	}
	h, ok := f.hosts[hostName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "add_initiator", nil)
	}
	if isIQN {
		h.IQNs = append(h.IQNs, iqnOrWwn)
	} else {
		h.WWNs = append(h.WWNs, iqnOrWwn)
	}
	f.hosts[hostName] = h
	return nil
}

func (f *fakeArray) RemoveInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[hostName]
	if !ok {
		return pureerr.New(pureerr.KindNotFound, "remove_initiator", nil)
	}
	filter := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if v != iqnOrWwn {
				out = append(out, v)
			}
		}
		return out
	}
	if isIQN {
		h.IQNs = filter(h.IQNs)
	} else {
		h.WWNs = filter(h.WWNs)
	}
	f.hosts[hostName] = h
	return nil
}

func (f *fakeArray) Connect(ctx context.Context, hostName, volumeName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeName]; !ok {
		return 0, pureerr.New(pureerr.KindNotFound, "connect", nil)
	}
	set, ok := f.connections[volumeName]
	if !ok {
		set = map[string]bool{}
		f.connections[volumeName] = set
	}
	if set[hostName] {
		return 0, pureerr.New(pureerr.KindConflict, "connect", nil)
	}
	set[hostName] = true
	return 1, nil
}

func (f *fakeArray) Disconnect(ctx context.Context, hostName, volumeName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.connections[volumeName]
	if !ok || !set[hostName] {
		return pureerr.New(pureerr.KindNotFound, "disconnect", nil)
	}
	delete(set, hostName)
	return nil
}

func (f *fakeArray) ListConnections(ctx context.Context, volumeName string) ([]model.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Connection
	for host := range f.connections[volumeName] {
		out = append(out, model.Connection{HostName: host, VolumeName: volumeName})
	}
	return out, nil
}

func (f *fakeArray) ListISCSIPorts(ctx context.Context) ([]arrayclient.ISCSIPort, error) {
	return []arrayclient.ISCSIPort{{Portal: "10.0.0.1:3260", IQN: "iqn.array.target"}}, nil
}

func (f *fakeArray) ListFCPorts(ctx context.Context) ([]arrayclient.FCPort, error) {
	return nil, nil
}

func padSerial(n int) string {
	s := "000000000000000000000000"
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return s[:len(s)-len(digits)] + string(digits)
}

func splitPodForTest(qualified string) (pod, local string) {
	for i := 0; i+1 < len(qualified); i++ {
		if qualified[i] == ':' && qualified[i+1] == ':' {
			return qualified[:i], qualified[i+2:]
		}
	}
	return "", qualified
}

func hasPrefixForTest(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// fakeProtocol is a no-op sanfabric.Protocol stand-in.
type fakeProtocol struct {
	name          string
	localInit     []string
	localInitErr  error
	discoverErr   error
	rescanErr     error
	rescanCalls   int
	cleanupCalls  int
	discoverCalls [][]string
}

func (f *fakeProtocol) Name() string { return f.name }

func (f *fakeProtocol) LocalInitiator(ctx context.Context) ([]string, error) {
	return f.localInit, f.localInitErr
}

func (f *fakeProtocol) DiscoverAndLogin(ctx context.Context, targets []string) error {
	f.discoverCalls = append(f.discoverCalls, targets)
	return f.discoverErr
}

func (f *fakeProtocol) RescanFabric(ctx context.Context) error {
	f.rescanCalls++
	return f.rescanErr
}

func (f *fakeProtocol) CleanupSessions(ctx context.Context, targets []string) error {
	f.cleanupCalls++
	return nil
}

// fakeResolver is an in-memory device.Resolver: wwid -> mapper path, with
// controllable in-use/teardown behavior.
type fakeResolver struct {
	mu        sync.Mutex
	byWWID    map[string]string
	inUse     map[string]bool
	teardowns []string
	waitErr   error
}

var _ device.Resolver = (*fakeResolver)(nil)

func newFakeResolver() *fakeResolver {
	return &fakeResolver{byWWID: map[string]string{}, inUse: map[string]bool{}}
}

func (f *fakeResolver) Lookup(ctx context.Context, wwid string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.byWWID[wwid]
	return path, ok, nil
}

func (f *fakeResolver) Slaves(mapperName string) ([]string, error) {
	return []string{"sdz"}, nil
}

func (f *fakeResolver) InUse(ctx context.Context, mapperPath string, slaves []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inUse[mapperPath], nil
}

func (f *fakeResolver) Teardown(ctx context.Context, mapperPath string, slaves []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns = append(f.teardowns, mapperPath)
	for wwid, path := range f.byWWID {
		if path == mapperPath {
			delete(f.byWWID, wwid)
		}
	}
	return nil
}

func (f *fakeResolver) WaitForDevice(ctx context.Context, wwid string, timeout time.Duration, rescan device.RescanFunc) (string, error) {
	if f.waitErr != nil {
		return "", f.waitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/dev/mapper/" + wwid
	f.byWWID[wwid] = path
	return path, nil
}

func testConfig() pureconfig.Config {
	return pureconfig.Config{
		Portal:        "10.0.0.1",
		APIToken:      "tok",
		Protocol:      pureconfig.ProtocolISCSI,
		HostMode:      pureconfig.HostModePerNode,
		ClusterName:   "pve",
		DeviceTimeout: 30,
	}
}

func newTestOrchestrator() (*Orchestrator, *fakeArray, *fakeProtocol, *fakeResolver) {
	array := newFakeArray()
	proto := &fakeProtocol{name: "iscsi", localInit: []string{"iqn.host.initiator"}}
	resolver := newFakeResolver()
	o := New(array, proto, resolver, testConfig(), "mystore", "node1")
	return o, array, proto, resolver
}
