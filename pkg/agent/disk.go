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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

var (
	lsblkColumns   = "NAME,KNAME,TYPE,SIZE,ROTA,MODEL,SERIAL,WWN,PTUUID,PARTUUID,PKNAME,MOUNTPOINT,FSTYPE"
	udevadmSymlink = []string{"udevadm", "info", "-r", "--query=symlink"}
	slotLinkPrefix = "/dev/disk/by-path/"
	ledctlBinary   = "/usr/sbin/ledctl"
)

// blockDevice is single lsblk device entry.
type blockDevice struct {
	Name       string        `json:"name"`
	Kname      string        `json:"kname"`
	Type       string        `json:"type"`
	Size       int64         `json:"size"`
	Rotational bool          `json:"rota"`
	Model      string        `json:"model,omitempty"`
	Serial     string        `json:"serial,omitempty"`
	Wwn        string        `json:"wwn,omitempty"`
	PtUUID     string        `json:"ptuuid,omitempty"`
	PartUUID   string        `json:"partuuid,omitempty"`
	Parent     string        `json:"pkname,omitempty"`
	Mountpoint string        `json:"mountpoint,omitempty"`
	FsType     string        `json:"fstype,omitempty"`
	Children   []blockDevice `json:"children,omitempty"`
}

type lsblkReport struct {
	Blockdevices []blockDevice `json:"blockdevices"`
}

// inUse reports device or any of its children carrying data.
func (d blockDevice) inUse() bool {
	if d.Mountpoint != "" || d.FsType != "" {
		return true
	}
	for _, child := range d.Children {
		if child.inUse() {
			return true
		}
	}
	return false
}

func (d blockDevice) mounted() bool {
	if d.Mountpoint != "" {
		return true
	}
	for _, child := range d.Children {
		if child.mounted() {
			return true
		}
	}
	return false
}

type diskModule struct {
	log     zerolog.Logger
	exec    executor.Executor
	timeout time.Duration
}

func (m diskModule) register(r *rpc.Router) {
	r.Register(rpc.MethodDiskGetAll, rpc.Typed(m.getAll))
	r.Register(rpc.MethodDiskSmartGet, rpc.Typed(m.smartGet))
	r.Register(rpc.MethodDiskLight, rpc.Typed(m.light))
	r.Register(rpc.MethodDiskPartitionsCreate, rpc.Typed(m.partitionsCreate))
	r.Register(rpc.MethodDiskPartitionsRemove, rpc.Typed(m.partitionsRemove))
}

func (m diskModule) run(ctx context.Context, argv ...string) (string, error) {
	m.log.Debug().Msgf("running '%s'", strings.Join(argv, " "))
	return run(ctx, m.exec, m.timeout, argv...)
}

func (m diskModule) lsblk(ctx context.Context, devices ...string) (*lsblkReport, error) {
	argv := append([]string{"lsblk", "-J", "-b", "-p", "-o", lsblkColumns}, devices...)
	output, err := m.run(ctx, argv...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get lsblk info")
	}
	report := &lsblkReport{}
	if err := json.Unmarshal([]byte(output), report); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal lsblk output")
	}
	return report, nil
}

// slot returns by-path alias of device which identifies physical slot.
func (m diskModule) slot(ctx context.Context, device string) string {
	output, err := m.run(ctx, append(udevadmSymlink, device)...)
	if err != nil {
		m.log.Warn().Err(err).Msgf("failed to get udevadm info for device '%s'", device)
		return ""
	}
	symlinks := strings.Fields(output)
	sort.Strings(symlinks)
	for _, symlink := range symlinks {
		if strings.HasPrefix(symlink, slotLinkPrefix) {
			return filepath.Base(symlink)
		}
	}
	return ""
}

func toPartitions(device blockDevice) []objects.DiskPartition {
	partitions := []objects.DiskPartition{}
	for _, child := range device.Children {
		if child.Type != "part" {
			continue
		}
		status := objects.PartitionStatusAvailable
		if child.inUse() {
			status = objects.PartitionStatusInUse
		}
		partitions = append(partitions, objects.DiskPartition{
			Name:   devName(child.Name),
			Size:   child.Size,
			Status: status,
			UUID:   child.PartUUID,
		})
	}
	return partitions
}

func (m diskModule) toDiskInfo(ctx context.Context, device blockDevice, supportLed bool) rpc.DiskInfo {
	disk := objects.Disk{
		Name:       devName(device.Name),
		Size:       device.Size,
		Type:       objects.DiskTypeSSD,
		Slot:       m.slot(ctx, device.Name),
		Model:      strings.TrimSpace(device.Model),
		Serial:     strings.TrimSpace(device.Serial),
		Wwid:       device.Wwn,
		GUID:       device.PtUUID,
		Role:       objects.DiskRoleData,
		Status:     objects.DiskStatusAvailable,
		SupportLed: supportLed,
	}
	if device.Rotational {
		disk.Type = objects.DiskTypeHDD
	}
	if device.mounted() {
		disk.Role = objects.DiskRoleSystem
		disk.Status = objects.DiskStatusInUse
	} else if device.inUse() {
		disk.Status = objects.DiskStatusInUse
	}
	partitions := toPartitions(device)
	disk.PartitionNum = len(partitions)
	return rpc.DiskInfo{Disk: disk, Partitions: partitions}
}

// scan lists physical disks of node with their partitions.
func (m diskModule) scan(ctx context.Context) ([]rpc.DiskInfo, error) {
	report, err := m.lsblk(ctx)
	if err != nil {
		return nil, err
	}
	supportLed, err := m.exec.PathExists(ctx, ledctlBinary)
	if err != nil {
		return nil, err
	}
	disks := []rpc.DiskInfo{}
	for _, device := range report.Blockdevices {
		// loop, rom and virtual devices are never used for storage
		if device.Type != "disk" {
			continue
		}
		disks = append(disks, m.toDiskInfo(ctx, device, supportLed))
	}
	sort.Slice(disks, func(i, j int) bool { return disks[i].Disk.Name < disks[j].Disk.Name })
	return disks, nil
}

func (m diskModule) getAll(ctx context.Context, _ rpc.Empty) ([]rpc.DiskInfo, error) {
	return m.scan(ctx)
}

// smartGet returns 'key: value' pairs of smartctl info and health sections.
func (m diskModule) smartGet(ctx context.Context, req rpc.DiskRequest) (map[string]string, error) {
	if req.Name == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "disk name is not specified")
	}
	output, err := m.run(ctx, "smartctl", "-i", "-H", devPath(req.Name))
	// smartctl exit code is a bit mask, output is still valid for most bits
	if err != nil {
		cmdErr, ok := dspcommon.GetCommandError(err)
		if !ok || cmdErr.ExitCode&0x3 != 0 {
			return nil, errors.Wrapf(err, "failed to get smart info of '%s'", req.Name)
		}
		output = cmdErr.Stdout
	}
	info := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.HasPrefix(line, " ") || strings.TrimSpace(value) == "" {
			continue
		}
		info[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return info, nil
}

func (m diskModule) light(ctx context.Context, req rpc.DiskLightRequest) (any, error) {
	var pattern string
	switch req.Led {
	case "on":
		pattern = "locate="
	case "off":
		pattern = "locate_off="
	default:
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "led state '%s' is not supported, expected 'on' or 'off'", req.Led)
	}
	if _, err := m.run(ctx, "ledctl", pattern+devPath(req.Name)); err != nil {
		return nil, errors.Wrapf(err, "failed to turn %s led of '%s'", req.Led, req.Name)
	}
	return nil, nil
}

// partitionsCreate splits cache disk into partitions, zero size takes the rest.
func (m diskModule) partitionsCreate(ctx context.Context, req rpc.PartitionsCreateRequest) ([]objects.DiskPartition, error) {
	if req.Disk.Name == "" || len(req.Values) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "disk and partitions are required")
	}
	device := devPath(req.Disk.Name)
	if _, err := m.run(ctx, "sgdisk", "--zap-all", device); err != nil {
		return nil, errors.Wrapf(err, "failed to clear partition table of '%s'", req.Disk.Name)
	}
	for idx, spec := range req.Values {
		number := idx + 1
		end := "0"
		if spec.Size > 0 {
			end = fmt.Sprintf("+%dM", spec.Size>>20)
		}
		args := []string{
			"sgdisk",
			fmt.Sprintf("--new=%d:0:%s", number, end),
			fmt.Sprintf("--change-name=%d:%s", number, spec.Role),
			device,
		}
		if _, err := m.run(ctx, args...); err != nil {
			return nil, errors.Wrapf(err, "failed to create partition %d on '%s'", number, req.Disk.Name)
		}
	}
	if _, err := m.run(ctx, "partprobe", device); err != nil {
		return nil, errors.Wrapf(err, "failed to reload partition table of '%s'", req.Disk.Name)
	}
	report, err := m.lsblk(ctx, device)
	if err != nil {
		return nil, err
	}
	if len(report.Blockdevices) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "disk '%s' not found", req.Disk.Name)
	}
	found := map[string]objects.DiskPartition{}
	for _, partition := range toPartitions(report.Blockdevices[0]) {
		found[partition.Name] = partition
	}
	partitions := make([]objects.DiskPartition, 0, len(req.Values))
	for idx, spec := range req.Values {
		name := partitionName(req.Disk.Name, idx+1)
		partition, ok := found[name]
		if !ok {
			return nil, dspcommon.NewError(dspcommon.ErrNotFound, "partition '%s' not found after creation", name)
		}
		partition.ClusterID = req.Disk.ClusterID
		partition.NodeID = req.Disk.NodeID
		partition.DiskID = req.Disk.ID
		partition.Role = spec.Role
		partition.Status = objects.PartitionStatusAvailable
		partitions = append(partitions, partition)
	}
	m.log.Info().Msgf("created %d partitions on disk '%s'", len(partitions), req.Disk.Name)
	return partitions, nil
}

func (m diskModule) partitionsRemove(ctx context.Context, req rpc.DiskRequest) (any, error) {
	if req.Name == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "disk name is not specified")
	}
	device := devPath(req.Name)
	for _, argv := range [][]string{{"wipefs", "--all", device}, {"sgdisk", "--zap-all", device}, {"partprobe", device}} {
		if _, err := m.run(ctx, argv...); err != nil {
			return nil, errors.Wrapf(err, "failed to clear partitions of '%s'", req.Name)
		}
	}
	m.log.Info().Msgf("partitions of disk '%s' removed", req.Name)
	return nil, nil
}

// sizeString is used in logs only.
func sizeString(size int64) string {
	return strconv.FormatInt(size>>30, 10) + "G"
}
