/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

const (
	cephTmpDir      = "/var/lib/ceph/tmp"
	monmapTmpFile   = cephTmpDir + "/monmap"
	monKeyringFile  = cephTmpDir + "/ceph.mon.keyring"
	cephOwner       = "ceph:ceph"
	osdPackage      = "ceph-osd"
	cephVolumeTool  = "ceph-volume"
	historicOpsTime = "2006-01-02T15:04:05.000000-0700"
)

var (
	// packages removed together with last ceph service of node
	cephPackages = []string{"ceph-mon", "ceph-mgr", "ceph-osd", "ceph-common", "ceph-base"}
	// ceph data which is owned by node services
	cephDataDirs = []string{dspcommon.CephConfigDir, "/var/lib/ceph", dspcommon.CephLogDir}
	// keyrings may be written only there
	keyringDirs = []string{dspcommon.CephConfigDir + "/", "/var/lib/ceph/bootstrap-"}
	// mock for tests
	monPollInterval = time.Second
	monReadyTimeout = dspcommon.MonReadyTimeout
)

type cephModule struct {
	log      zerolog.Logger
	exec     executor.Executor
	hostname string
	ip       string
	timeout  time.Duration
}

func (m cephModule) register(r *rpc.Router) {
	r.Register(rpc.MethodCephConfWrite, rpc.Typed(m.confWrite))
	r.Register(rpc.MethodCephConfigUpdate, rpc.Typed(m.configUpdate))
	r.Register(rpc.MethodCephKeyringWrite, rpc.Typed(m.keyringWrite))
	r.Register(rpc.MethodCephMonCreate, rpc.Typed(m.monCreate))
	r.Register(rpc.MethodCephMonRemove, rpc.Typed(m.monRemove))
	r.Register(rpc.MethodCephOsdPackageInstall, rpc.Typed(m.osdPackageInstall))
	r.Register(rpc.MethodCephOsdPackageUninstall, rpc.Typed(m.osdPackageUninstall))
	r.Register(rpc.MethodCephPackageUninstall, rpc.Typed(m.packageUninstall))
	r.Register(rpc.MethodCephOsdCreate, rpc.Typed(m.osdCreate))
	r.Register(rpc.MethodCephPrepareDisk, rpc.Typed(m.prepareDisk))
	r.Register(rpc.MethodCephActiveDisk, rpc.Typed(m.activeDisk))
	r.Register(rpc.MethodCephOsdDestroy, rpc.Typed(m.osdDestroy))
	r.Register(rpc.MethodCephOsdServiceStatus, rpc.Typed(m.osdServiceStatus))
	r.Register(rpc.MethodCephSlowRequest, rpc.Typed(m.slowRequest))
}

func (m cephModule) run(ctx context.Context, argv ...string) (string, error) {
	m.log.Debug().Msgf("running '%s'", strings.Join(argv, " "))
	return run(ctx, m.exec, m.timeout, argv...)
}

func (m cephModule) systemctl(ctx context.Context, args ...string) error {
	_, err := m.run(ctx, append([]string{"systemctl"}, args...)...)
	return err
}

// client opens ceph client using local ceph.conf written by admin.
func (m cephModule) client(ctx context.Context) (*ceph.Client, error) {
	content, err := m.exec.ReadFile(ctx, dspcommon.CephConfigFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", dspcommon.CephConfigFile)
	}
	monHost := ceph.ParseConfig(string(content))["global"]["mon_host"]
	if monHost == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "mon_host is not set in '%s'", dspcommon.CephConfigFile)
	}
	keyring := ""
	if present, err := m.exec.PathExists(ctx, dspcommon.CephAdminKeyringFile); err == nil && present {
		keyring = dspcommon.CephAdminKeyringFile
	}
	return ceph.Open(m.log, m.exec, ceph.ConnectionConfig{
		MonHost:  monHost,
		ConfFile: dspcommon.CephConfigFile,
		Keyring:  keyring,
		Timeout:  m.timeout,
	})
}

func (m cephModule) confWrite(ctx context.Context, req rpc.CephConfWriteRequest) (rpc.WriteResult, error) {
	changed, err := writeIfChanged(ctx, m.exec, dspcommon.CephConfigFile, req.Content, executor.FileOptions{Mode: 0644})
	if err != nil {
		return rpc.WriteResult{}, errors.Wrapf(err, "failed to write '%s'", dspcommon.CephConfigFile)
	}
	if changed {
		m.log.Info().Msgf("'%s' updated", dspcommon.CephConfigFile)
	}
	return rpc.WriteResult{Changed: changed}, nil
}

// configUpdate merges values into local ceph.conf, empty value drops key.
func (m cephModule) configUpdate(ctx context.Context, req rpc.CephConfigUpdateRequest) (rpc.WriteResult, error) {
	current, err := m.exec.ReadFile(ctx, dspcommon.CephConfigFile)
	if err != nil && !dspcommon.IsNotFound(err) {
		return rpc.WriteResult{}, errors.Wrapf(err, "failed to read '%s'", dspcommon.CephConfigFile)
	}
	groups := ceph.ParseConfig(string(current))
	for _, value := range req.Values {
		if value.Group == "" || value.Key == "" {
			return rpc.WriteResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "config value requires group and key, got '%s/%s'", value.Group, value.Key)
		}
		if value.Value == "" {
			delete(groups[value.Group], value.Key)
			continue
		}
		if groups[value.Group] == nil {
			groups[value.Group] = map[string]string{}
		}
		groups[value.Group][value.Key] = value.Value
	}
	return m.confWrite(ctx, rpc.CephConfWriteRequest{Content: ceph.RenderConfig(groups)})
}

func keyringAllowed(path string) bool {
	clean := filepath.Clean(path)
	if clean != path || !filepath.IsAbs(path) {
		return false
	}
	for _, dir := range keyringDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

func (m cephModule) keyringWrite(ctx context.Context, req rpc.KeyringWriteRequest) (rpc.WriteResult, error) {
	if !keyringAllowed(req.Path) {
		return rpc.WriteResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "keyring path '%s' is not allowed", req.Path)
	}
	changed, err := writeIfChanged(ctx, m.exec, req.Path, req.Content, executor.FileOptions{Mode: 0600, Owner: cephOwner})
	if err != nil {
		return rpc.WriteResult{}, errors.Wrapf(err, "failed to write keyring '%s'", req.Path)
	}
	if changed {
		m.log.Info().Msgf("keyring '%s' updated", req.Path)
	}
	return rpc.WriteResult{Changed: changed}, nil
}

// fetchMonmap builds initial monmap when node is the only monitor, otherwise
// takes current one from cluster.
func (m cephModule) fetchMonmap(ctx context.Context, fsid string) error {
	content, err := m.exec.ReadFile(ctx, dspcommon.CephConfigFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read '%s'", dspcommon.CephConfigFile)
	}
	hosts := []string{}
	for _, host := range strings.Split(ceph.ParseConfig(string(content))["global"]["mon_host"], ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return dspcommon.NewError(dspcommon.ErrInvalid, "mon_host is not set in '%s'", dspcommon.CephConfigFile)
	}
	if len(hosts) == 1 && hosts[0] == m.ip {
		m.log.Info().Msgf("bootstrapping initial monmap for fsid '%s'", fsid)
		_, err := m.run(ctx, "monmaptool", "--create", "--clobber", "--add", m.hostname, m.ip, "--fsid", fsid, monmapTmpFile)
		return err
	}
	client, err := m.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.MonGetMap(ctx, monmapTmpFile)
}

// waitMonReady polls local admin socket until monitor joins quorum, monitor
// which did not join in time is reported but not failed.
func (m cephModule) waitMonReady(ctx context.Context) {
	state := ""
	err := wait.PollUntilContextTimeout(ctx, monPollInterval, monReadyTimeout, true, func(ctx context.Context) (bool, error) {
		output, err := m.run(ctx, "ceph", "daemon", "mon."+m.hostname, "mon_status")
		if err != nil {
			return false, nil
		}
		status := struct {
			State string `json:"state"`
		}{}
		if err := json.Unmarshal([]byte(output), &status); err != nil {
			return false, nil
		}
		state = status.State
		return state == "leader" || state == "peon", nil
	})
	if err != nil {
		m.log.Warn().Msgf("monitor '%s' is not in quorum after %v, last state '%s'", m.hostname, monReadyTimeout, state)
		return
	}
	m.log.Info().Msgf("monitor '%s' is in quorum as %s", m.hostname, state)
}

func (m cephModule) mgrCreate(ctx context.Context, req rpc.MonCreateRequest) error {
	dataDir := fmt.Sprintf(dspcommon.CephMgrDataDirTmpl, m.hostname)
	client, err := m.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	if req.CephAuth {
		keyring, err := client.AuthGetOrCreate(ctx, "mgr."+m.hostname, "mon", "allow profile mgr", "osd", "allow *", "mds", "allow *")
		if err != nil {
			return errors.Wrapf(err, "failed to get keyring of mgr '%s'", m.hostname)
		}
		if err := m.exec.WriteFile(ctx, dataDir+"/keyring", []byte(keyring), executor.FileOptions{Mode: 0600, Owner: cephOwner}); err != nil {
			return errors.Wrapf(err, "failed to write keyring of mgr '%s'", m.hostname)
		}
	}
	if req.MgrPort > 0 {
		if err := client.ConfigSet(ctx, ceph.ConfigTarget("mgr"), "mgr/prometheus/server_port", strconv.Itoa(req.MgrPort)); err != nil {
			return errors.Wrap(err, "failed to set mgr port")
		}
	}
	return m.systemctl(ctx, "enable", "--now", fmt.Sprintf(dspcommon.CephMgrServiceTmpl, m.hostname))
}

func (m cephModule) monCreate(ctx context.Context, req rpc.MonCreateRequest) (rpc.MonCreateResult, error) {
	if req.Fsid == "" {
		return rpc.MonCreateResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "fsid is required to create monitor")
	}
	if req.CephAuth && (req.AdminKeyring == "" || req.MonKeyring == "") {
		return rpc.MonCreateResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "admin and mon keyrings are required when cephx is enabled")
	}
	dataDir := fmt.Sprintf(dspcommon.CephMonDataDirTmpl, m.hostname)
	service := fmt.Sprintf(dspcommon.CephMonServiceTmpl, m.hostname)
	done, err := m.exec.PathExists(ctx, dataDir+"/done")
	if err != nil {
		return rpc.MonCreateResult{}, err
	}
	if done {
		m.log.Info().Msgf("monitor '%s' already exists", m.hostname)
		return rpc.MonCreateResult{}, m.systemctl(ctx, "enable", "--now", service)
	}

	mkfs := []string{"ceph-mon", "--mkfs", "-i", m.hostname, "--monmap", monmapTmpFile, "--setuser", "ceph", "--setgroup", "ceph"}
	if req.CephAuth {
		if err := m.exec.WriteFile(ctx, dspcommon.CephAdminKeyringFile, []byte(req.AdminKeyring), executor.FileOptions{Mode: 0600, Owner: cephOwner}); err != nil {
			return rpc.MonCreateResult{}, errors.Wrap(err, "failed to write admin keyring")
		}
		if err := m.exec.WriteFile(ctx, monKeyringFile, []byte(req.MonKeyring), executor.FileOptions{Mode: 0600, Owner: cephOwner}); err != nil {
			return rpc.MonCreateResult{}, errors.Wrap(err, "failed to write mon keyring")
		}
		defer m.removeTmp(ctx, monKeyringFile)
		mkfs = append(mkfs, "--keyring", monKeyringFile)
	}
	if err := m.fetchMonmap(ctx, req.Fsid); err != nil {
		return rpc.MonCreateResult{}, errors.Wrap(err, "failed to get monmap")
	}
	defer m.removeTmp(ctx, monmapTmpFile)
	if _, err := m.run(ctx, mkfs...); err != nil {
		return rpc.MonCreateResult{}, errors.Wrapf(err, "failed to create monitor '%s'", m.hostname)
	}
	if err := m.exec.WriteFile(ctx, dataDir+"/done", []byte{}, executor.FileOptions{Owner: cephOwner}); err != nil {
		return rpc.MonCreateResult{}, err
	}
	if err := m.systemctl(ctx, "enable", "--now", service); err != nil {
		return rpc.MonCreateResult{}, err
	}
	m.waitMonReady(ctx)
	if err := m.mgrCreate(ctx, req); err != nil {
		return rpc.MonCreateResult{}, err
	}
	m.log.Info().Msgf("monitor '%s' created", m.hostname)
	return rpc.MonCreateResult{Created: true}, nil
}

func (m cephModule) removeTmp(ctx context.Context, path string) {
	if err := m.exec.RemovePath(ctx, path); err != nil {
		m.log.Warn().Err(err).Msgf("failed to remove '%s'", path)
	}
}

// monRemove stops mon and mgr of node, last monitor can't leave monmap.
func (m cephModule) monRemove(ctx context.Context, req rpc.MonRemoveRequest) (any, error) {
	for _, service := range []string{fmt.Sprintf(dspcommon.CephMgrServiceTmpl, m.hostname), fmt.Sprintf(dspcommon.CephMonServiceTmpl, m.hostname)} {
		if err := m.systemctl(ctx, "disable", "--now", service); err != nil && !commandFailed(err) {
			return nil, err
		}
	}
	if !req.LastMon {
		client, err := m.client(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		if err := client.MonRemove(ctx, m.hostname); err != nil && !dspcommon.IsNotFound(err) {
			return nil, errors.Wrapf(err, "failed to remove monitor '%s' from monmap", m.hostname)
		}
	}
	for _, dir := range []string{fmt.Sprintf(dspcommon.CephMgrDataDirTmpl, m.hostname), fmt.Sprintf(dspcommon.CephMonDataDirTmpl, m.hostname)} {
		if err := m.exec.RemovePath(ctx, dir); err != nil {
			return nil, err
		}
	}
	m.log.Info().Msgf("monitor '%s' removed", m.hostname)
	return nil, nil
}

func (m cephModule) packageInstalled(ctx context.Context, name string) (bool, error) {
	_, err := m.run(ctx, "dpkg", "-s", name)
	if err == nil {
		return true, nil
	}
	if commandFailed(err) {
		return false, nil
	}
	return false, err
}

func (m cephModule) osdPackageInstall(ctx context.Context, _ rpc.Empty) (any, error) {
	installed, err := m.packageInstalled(ctx, osdPackage)
	if err != nil || installed {
		return nil, err
	}
	if _, err := m.run(ctx, "apt-get", "install", "-y", osdPackage); err != nil {
		return nil, errors.Wrapf(err, "failed to install '%s'", osdPackage)
	}
	return nil, nil
}

func (m cephModule) osdPackageUninstall(ctx context.Context, _ rpc.Empty) (any, error) {
	if _, err := m.run(ctx, "apt-get", "purge", "-y", osdPackage); err != nil {
		return nil, errors.Wrapf(err, "failed to uninstall '%s'", osdPackage)
	}
	return nil, nil
}

func (m cephModule) packageUninstall(ctx context.Context, _ rpc.Empty) (any, error) {
	if _, err := m.run(ctx, append([]string{"apt-get", "purge", "-y"}, cephPackages...)...); err != nil {
		return nil, errors.Wrap(err, "failed to uninstall ceph packages")
	}
	for _, dir := range cephDataDirs {
		if err := m.exec.RemovePath(ctx, dir); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// osdVolume is part of 'ceph-volume lvm list' report.
type osdVolume struct {
	Devices []string      `json:"devices"`
	LvPath  string        `json:"lv_path"`
	Type    string        `json:"type"`
	Tags    osdVolumeTags `json:"tags"`
}

type osdVolumeTags struct {
	ClusterFSID string `json:"ceph.cluster_fsid"`
	OsdFSID     string `json:"ceph.osd_fsid"`
	OsdID       string `json:"ceph.osd_id"`
}

// findOsdByFsid looks up osd id of prepared volume on disk.
func (m cephModule) findOsdByFsid(ctx context.Context, disk, fsid string) (string, error) {
	output, err := m.run(ctx, cephVolumeTool, "lvm", "list", devPath(disk), "--format", "json")
	if err != nil {
		return "", err
	}
	volumes := map[string][]osdVolume{}
	if err := json.Unmarshal([]byte(output), &volumes); err != nil {
		return "", errors.Wrap(err, "failed to parse 'ceph-volume lvm list' output")
	}
	for osdID, list := range volumes {
		for _, volume := range list {
			if volume.Tags.OsdFSID == fsid {
				return osdID, nil
			}
		}
	}
	return "", dspcommon.NewError(dspcommon.ErrOsdNotFound, "osd with fsid '%s' not found on disk '%s'", fsid, disk)
}

func prepareArgs(graph rpc.OsdGraph, fsid string) []string {
	args := []string{cephVolumeTool, "lvm", "prepare", "--osd-fsid", fsid, "--data", devPath(graph.Disk.Name)}
	if graph.Osd.Type == objects.OsdTypeFilestore {
		args = append(args, "--filestore")
		if graph.Journal != nil {
			args = append(args, "--journal", devPath(graph.Journal.Name))
		}
		return args
	}
	args = append(args, "--bluestore")
	switch {
	case graph.DB != nil:
		args = append(args, "--block.db", devPath(graph.DB.Name))
	case graph.Cache != nil:
		args = append(args, "--block.db", devPath(graph.Cache.Name))
	}
	if graph.Wal != nil {
		args = append(args, "--block.wal", devPath(graph.Wal.Name))
	}
	return args
}

func (m cephModule) prepareDisk(ctx context.Context, req rpc.OsdRequest) (rpc.OsdResult, error) {
	graph := req.Osd
	if graph.Disk.Name == "" {
		return rpc.OsdResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "osd disk is not specified")
	}
	fsid := uuid.NewString()
	if graph.Osd.Fsid != nil && *graph.Osd.Fsid != "" {
		fsid = *graph.Osd.Fsid
	}
	if _, err := m.run(ctx, "sgdisk", "--zap-all", devPath(graph.Disk.Name)); err != nil {
		return rpc.OsdResult{}, errors.Wrapf(err, "failed to clear partition table of '%s'", graph.Disk.Name)
	}
	if _, err := m.run(ctx, prepareArgs(graph, fsid)...); err != nil {
		return rpc.OsdResult{}, errors.Wrapf(err, "failed to prepare disk '%s'", graph.Disk.Name)
	}
	m.log.Info().Msgf("disk '%s' prepared with osd fsid '%s'", graph.Disk.Name, fsid)
	return rpc.OsdResult{Fsid: fsid}, nil
}

func (m cephModule) activeDisk(ctx context.Context, req rpc.OsdRequest) (rpc.OsdResult, error) {
	graph := req.Osd
	if graph.Osd.Fsid == nil || *graph.Osd.Fsid == "" {
		return rpc.OsdResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "disk '%s' is not prepared", graph.Disk.Name)
	}
	fsid := *graph.Osd.Fsid
	osdID, err := m.findOsdByFsid(ctx, graph.Disk.Name, fsid)
	if err != nil {
		return rpc.OsdResult{}, err
	}
	store := "--bluestore"
	if graph.Osd.Type == objects.OsdTypeFilestore {
		store = "--filestore"
	}
	if _, err := m.run(ctx, cephVolumeTool, "lvm", "activate", store, osdID, fsid); err != nil {
		return rpc.OsdResult{}, errors.Wrapf(err, "failed to activate osd.%s", osdID)
	}
	m.log.Info().Msgf("osd.%s activated on disk '%s'", osdID, graph.Disk.Name)
	return rpc.OsdResult{OsdID: osdID, Fsid: fsid}, nil
}

// osdCreate runs prepare and activate in one call.
func (m cephModule) osdCreate(ctx context.Context, req rpc.OsdRequest) (rpc.OsdResult, error) {
	prepared, err := m.prepareDisk(ctx, req)
	if err != nil {
		return rpc.OsdResult{}, err
	}
	req.Osd.Osd.Fsid = &prepared.Fsid
	return m.activeDisk(ctx, req)
}

// osdDestroy stops osd service, unmounts data dir and zaps every device of osd.
func (m cephModule) osdDestroy(ctx context.Context, req rpc.OsdRequest) (any, error) {
	graph := req.Osd
	if graph.Osd.OsdID != nil {
		osdID := *graph.Osd.OsdID
		if err := m.systemctl(ctx, "disable", "--now", fmt.Sprintf(dspcommon.CephOsdServiceTmpl, osdID)); err != nil && !commandFailed(err) {
			return nil, err
		}
		dataDir := fmt.Sprintf(dspcommon.CephOsdDataDirTmpl, osdID)
		if _, err := m.run(ctx, "umount", dataDir); err != nil && !commandFailed(err) {
			return nil, err
		}
		if err := m.exec.RemovePath(ctx, dataDir); err != nil {
			return nil, err
		}
	}
	devices := []string{devPath(graph.Disk.Name)}
	for _, partition := range []*objects.DiskPartition{graph.Cache, graph.DB, graph.Wal, graph.Journal} {
		if partition != nil {
			devices = append(devices, devPath(partition.Name))
		}
	}
	for idx, device := range devices {
		args := []string{cephVolumeTool, "lvm", "zap", device}
		if idx == 0 {
			args = append(args, "--destroy")
		}
		if _, err := m.run(ctx, args...); err != nil {
			return nil, errors.Wrapf(err, "failed to zap '%s'", device)
		}
	}
	m.log.Info().Msgf("osd on disk '%s' destroyed", graph.Disk.Name)
	return nil, nil
}

func (m cephModule) osdServiceStatus(ctx context.Context, req rpc.OsdIDsRequest) (rpc.OsdServiceStatus, error) {
	status := rpc.OsdServiceStatus{}
	for _, osdID := range req.OsdIDs {
		err := m.systemctl(ctx, "is-active", "--quiet", fmt.Sprintf(dspcommon.CephOsdServiceTmpl, osdID))
		if err != nil && !commandFailed(err) {
			return nil, err
		}
		status[osdID] = err == nil
	}
	return status, nil
}

func parseInitiatedAt(value string) time.Time {
	for _, layout := range []string{historicOpsTime, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// slowRequest collects historic slow ops from local osd admin sockets,
// osds without reachable socket are skipped.
func (m cephModule) slowRequest(ctx context.Context, req rpc.OsdIDsRequest) ([]rpc.OsdSlowRequests, error) {
	client, err := m.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	result := []rpc.OsdSlowRequests{}
	for _, osdID := range req.OsdIDs {
		ops, err := client.HistoricSlowOps(ctx, osdID)
		if err != nil {
			m.log.Warn().Err(err).Msgf("failed to get slow requests of osd.%s", osdID)
			continue
		}
		entry := rpc.OsdSlowRequests{OsdID: osdID, Hostname: m.hostname, Count: len(ops.Ops), Ops: []rpc.SlowOp{}}
		for _, op := range ops.Ops {
			entry.Ops = append(entry.Ops, rpc.SlowOp{
				Description: op.Description,
				InitiatedAt: parseInitiatedAt(op.InitiatedAt),
				Duration:    op.Duration,
			})
		}
		result = append(result, entry)
	}
	return result, nil
}
