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
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/rpc"
)

// BlockGateway configures iscsi targets exporting rbd volumes.
type BlockGateway interface {
	Mount(ctx context.Context, req rpc.BgwRequest) error
	Unmount(ctx context.Context, req rpc.BgwRequest) error
	CreateMapping(ctx context.Context, req rpc.BgwRequest) error
	RemoveMapping(ctx context.Context, req rpc.BgwRequest) error
	AddVolume(ctx context.Context, req rpc.BgwRequest) error
	RemoveVolume(ctx context.Context, req rpc.BgwRequest) error
	SetChap(ctx context.Context, req rpc.BgwRequest) error
	ChangeClientGroup(ctx context.Context, req rpc.BgwRequest) error
	SetMutualChap(ctx context.Context, req rpc.BgwRequest) error
	ClearAll(ctx context.Context, req rpc.BgwRequest) error
}

type bgwModule struct {
	log     zerolog.Logger
	gateway BlockGateway
}

func (m bgwModule) register(r *rpc.Router) {
	methods := map[string]func(context.Context, rpc.BgwRequest) error{
		rpc.MethodMountBgw:             m.gateway.Mount,
		rpc.MethodUnmountBgw:           m.gateway.Unmount,
		rpc.MethodBgwCreateMapping:     m.gateway.CreateMapping,
		rpc.MethodBgwRemoveMapping:     m.gateway.RemoveMapping,
		rpc.MethodBgwAddVolume:         m.gateway.AddVolume,
		rpc.MethodBgwRemoveVolume:      m.gateway.RemoveVolume,
		rpc.MethodBgwSetChap:           m.gateway.SetChap,
		rpc.MethodBgwChangeClientGroup: m.gateway.ChangeClientGroup,
		rpc.MethodBgwSetMutualChap:     m.gateway.SetMutualChap,
		rpc.MethodBgwClearAll:          m.gateway.ClearAll,
	}
	for method, fn := range methods {
		call := fn
		name := method
		r.Register(name, rpc.Typed(func(ctx context.Context, req rpc.BgwRequest) (any, error) {
			if name != rpc.MethodBgwClearAll && req.AccessPath.Iqn == "" {
				return nil, dspcommon.NewError(dspcommon.ErrInvalid, "access path iqn is required for '%s'", name)
			}
			if err := call(ctx, req); err != nil {
				if dspcommon.GetErrorKind(err) == dspcommon.ErrRunCommand {
					return nil, dspcommon.WrapError(dspcommon.ErrIscsiTarget, err, "'%s' failed for '%s'", name, req.AccessPath.Iqn)
				}
				return nil, err
			}
			m.log.Info().Msgf("'%s' done for access path '%s'", name, req.AccessPath.Name)
			return nil, nil
		}))
	}
}

var aclRe = regexp.MustCompile(`o- ((?:iqn|eui|naa)\.\S+)`)

// TargetcliGateway drives LIO target through targetcli and maps volumes with
// rbd kernel client.
type TargetcliGateway struct {
	log     zerolog.Logger
	exec    executor.Executor
	timeout time.Duration
}

func NewTargetcliGateway(log zerolog.Logger, exec executor.Executor, timeout time.Duration) *TargetcliGateway {
	return &TargetcliGateway{log: log, exec: exec, timeout: timeout}
}

func (g *TargetcliGateway) targetcli(ctx context.Context, args ...string) (string, error) {
	g.log.Debug().Msgf("running 'targetcli %s'", strings.Join(args, " "))
	return run(ctx, g.exec, g.timeout, append([]string{"targetcli"}, args...)...)
}

func (g *TargetcliGateway) save(ctx context.Context) error {
	_, err := g.targetcli(ctx, "saveconfig")
	return err
}

func tpgPath(iqn string) string {
	return "/iscsi/" + iqn + "/tpg1"
}

// imageSpec is rbd image of volume, erasure volumes keep image in metadata pool.
func imageSpec(volume rpc.BgwVolume) string {
	pool := volume.Pool
	if volume.Erasure {
		pool += dspcommon.ErasurePoolMetadataSuffix
	}
	return pool + "/" + volume.Image
}

func (g *TargetcliGateway) Mount(ctx context.Context, req rpc.BgwRequest) error {
	iqn := req.AccessPath.Iqn
	if _, err := g.targetcli(ctx, "/iscsi/"+iqn, "ls"); err == nil {
		g.log.Info().Msgf("target '%s' already exists", iqn)
		return nil
	}
	if _, err := g.targetcli(ctx, "/iscsi", "create", iqn); err != nil {
		return err
	}
	if req.Node != nil && req.Node.PublicIP != "" {
		if _, err := g.targetcli(ctx, tpgPath(iqn)+"/portals", "delete", "0.0.0.0", "3260"); err != nil && !commandFailed(err) {
			return err
		}
		if _, err := g.targetcli(ctx, tpgPath(iqn)+"/portals", "create", req.Node.PublicIP); err != nil {
			return err
		}
	}
	if _, err := g.targetcli(ctx, tpgPath(iqn), "set", "attribute", "generate_node_acls=0", "authentication=0"); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) Unmount(ctx context.Context, req rpc.BgwRequest) error {
	if _, err := g.targetcli(ctx, "/iscsi", "delete", req.AccessPath.Iqn); err != nil && !commandFailed(err) {
		return err
	}
	if err := g.removeVolumes(ctx, req.Volumes); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) addVolumes(ctx context.Context, iqn string, volumes []rpc.BgwVolume) error {
	for _, volume := range volumes {
		output, err := run(ctx, g.exec, g.timeout, "rbd", "device", "map", imageSpec(volume))
		if err != nil {
			return err
		}
		device := strings.TrimSpace(output)
		if _, err := g.targetcli(ctx, "/backstores/block", "create", "name="+volume.Image, "dev="+device); err != nil {
			return err
		}
		if _, err := g.targetcli(ctx, tpgPath(iqn)+"/luns", "create", "/backstores/block/"+volume.Image); err != nil {
			return err
		}
	}
	return nil
}

// removeVolumes drops backstores, luns go away together with them.
func (g *TargetcliGateway) removeVolumes(ctx context.Context, volumes []rpc.BgwVolume) error {
	for _, volume := range volumes {
		if _, err := g.targetcli(ctx, "/backstores/block", "delete", volume.Image); err != nil && !commandFailed(err) {
			return err
		}
		if _, err := run(ctx, g.exec, g.timeout, "rbd", "device", "unmap", imageSpec(volume)); err != nil && !commandFailed(err) {
			return err
		}
	}
	return nil
}

func (g *TargetcliGateway) createAcls(ctx context.Context, iqn string, clients []string) error {
	for _, client := range clients {
		if _, err := g.targetcli(ctx, tpgPath(iqn)+"/acls", "create", client); err != nil {
			return err
		}
	}
	return nil
}

func (g *TargetcliGateway) deleteAcls(ctx context.Context, iqn string, clients []string) error {
	for _, client := range clients {
		if _, err := g.targetcli(ctx, tpgPath(iqn)+"/acls", "delete", client); err != nil && !commandFailed(err) {
			return err
		}
	}
	return nil
}

func (g *TargetcliGateway) listAcls(ctx context.Context, iqn string) ([]string, error) {
	output, err := g.targetcli(ctx, tpgPath(iqn)+"/acls", "ls")
	if err != nil {
		return nil, err
	}
	acls := []string{}
	for _, match := range aclRe.FindAllStringSubmatch(output, -1) {
		acls = append(acls, match[1])
	}
	return acls, nil
}

func clientsOf(req rpc.BgwRequest) []string {
	if req.ClientGroup == nil {
		return nil
	}
	return req.ClientGroup.Clients
}

func (g *TargetcliGateway) CreateMapping(ctx context.Context, req rpc.BgwRequest) error {
	if err := g.createAcls(ctx, req.AccessPath.Iqn, clientsOf(req)); err != nil {
		return err
	}
	if err := g.addVolumes(ctx, req.AccessPath.Iqn, req.Volumes); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) RemoveMapping(ctx context.Context, req rpc.BgwRequest) error {
	if err := g.removeVolumes(ctx, req.Volumes); err != nil {
		return err
	}
	if err := g.deleteAcls(ctx, req.AccessPath.Iqn, clientsOf(req)); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) AddVolume(ctx context.Context, req rpc.BgwRequest) error {
	if err := g.addVolumes(ctx, req.AccessPath.Iqn, req.Volumes); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) RemoveVolume(ctx context.Context, req rpc.BgwRequest) error {
	if err := g.removeVolumes(ctx, req.Volumes); err != nil {
		return err
	}
	return g.save(ctx)
}

// SetChap toggles target level chap, disabled chap clears credentials.
func (g *TargetcliGateway) SetChap(ctx context.Context, req rpc.BgwRequest) error {
	path := req.AccessPath
	auth, userid, password := "authentication=0", "userid=", "password="
	if path.ChapEnable {
		auth, userid, password = "authentication=1", "userid="+path.ChapName, "password="+path.ChapSecret
	}
	if _, err := g.targetcli(ctx, tpgPath(path.Iqn), "set", "attribute", auth); err != nil {
		return err
	}
	if _, err := g.targetcli(ctx, tpgPath(path.Iqn), "set", "auth", userid, password); err != nil {
		return err
	}
	return g.save(ctx)
}

// ChangeClientGroup replaces acls of target with clients of new group.
func (g *TargetcliGateway) ChangeClientGroup(ctx context.Context, req rpc.BgwRequest) error {
	iqn := req.AccessPath.Iqn
	current, err := g.listAcls(ctx, iqn)
	if err != nil {
		return err
	}
	wanted := clientsOf(req)
	stale := []string{}
	for _, client := range current {
		if !dspcommon.Contains(wanted, client) {
			stale = append(stale, client)
		}
	}
	missing := []string{}
	for _, client := range wanted {
		if !dspcommon.Contains(current, client) {
			missing = append(missing, client)
		}
	}
	if err := g.deleteAcls(ctx, iqn, stale); err != nil {
		return err
	}
	if err := g.createAcls(ctx, iqn, missing); err != nil {
		return err
	}
	return g.save(ctx)
}

func (g *TargetcliGateway) SetMutualChap(ctx context.Context, req rpc.BgwRequest) error {
	group := req.ClientGroup
	if group == nil {
		return dspcommon.NewError(dspcommon.ErrInvalid, "client group is required to set mutual chap")
	}
	userid, password := "mutual_userid=", "mutual_password="
	if group.MutualChapEnable {
		userid, password = "mutual_userid="+group.MutualChapName, "mutual_password="+group.MutualChapSecret
	}
	for _, client := range group.Clients {
		if _, err := g.targetcli(ctx, tpgPath(req.AccessPath.Iqn)+"/acls/"+client, "set", "auth", userid, password); err != nil {
			return err
		}
	}
	return g.save(ctx)
}

type mappedDevice struct {
	Pool string `json:"pool"`
	Name string `json:"name"`
	Dev  string `json:"device"`
}

// ClearAll drops whole target configuration and unmaps every rbd device.
func (g *TargetcliGateway) ClearAll(ctx context.Context, _ rpc.BgwRequest) error {
	if _, err := g.targetcli(ctx, "clearconfig", "confirm=True"); err != nil {
		return err
	}
	output, err := run(ctx, g.exec, g.timeout, "rbd", "device", "list", "--format", "json")
	if err != nil {
		return err
	}
	devices := []mappedDevice{}
	if err := json.Unmarshal([]byte(output), &devices); err != nil {
		return dspcommon.WrapError(dspcommon.ErrIscsiTarget, err, "failed to parse 'rbd device list' output")
	}
	for _, device := range devices {
		if _, err := run(ctx, g.exec, g.timeout, "rbd", "device", "unmap", device.Dev); err != nil {
			return err
		}
	}
	return g.save(ctx)
}
