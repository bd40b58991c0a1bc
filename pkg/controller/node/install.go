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


package node

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"k8s.io/apimachinery/pkg/util/wait"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

const (
	dockerService       = "docker"
	chronyService       = "chronyd"
	baseRole            = "base"
	runtimeProbeRetries = 6
	nodeExporterPort    = 9100
	nodeExporterPath    = "/metrics"
	cephRepoFile        = "/etc/apt/sources.list.d/ceph.list"
)

var (
	runtimeProbeInterval    = time.Second
	runtimeProbeMaxInterval = 64 * time.Second
	agentReadyInterval      = dspcommon.AgentReadyPollInterval
)

// Installer deploys and removes dspace services on nodes over ssh.
type Installer struct {
	c       *controller.Context
	bundles *BundleFetcher
}

func NewInstaller(c *controller.Context) *Installer {
	return &Installer{
		c:       c,
		bundles: NewBundleFetcher(dspcommon.ObjectLogger(c.Log, "bundle", "images"), c.Config.Install.ImageCacheDir),
	}
}

func image(params config.InstallParams, name string) string {
	return dspcommon.ImageName(params.ImageNamespace, name, params.DSpaceVersion)
}

type nodeTasks struct {
	*Installer
	id int64
}

func (n *nodeTasks) remote(ctx context.Context) (*objects.Node, executor.Executor, error) {
	node, err := n.c.DB.Nodes().Get(ctx, n.id)
	if err != nil {
		return nil, nil, err
	}
	exec, err := n.c.Remotes.ForNode(ctx, node)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to node '%s'", node.Hostname)
	}
	return node, exec, nil
}

func containerRunning(ctx context.Context, exec executor.Executor, name string) bool {
	result, err := exec.RunCommand(ctx, []string{"docker", "inspect", "--format", "{{.State.Running}}", name}, 0)
	return err == nil && strings.TrimSpace(result.Stdout) == "true"
}

func removeContainer(ctx context.Context, exec executor.Executor, name string) error {
	result, err := exec.RunCommand(ctx, []string{"docker", "rm", "-f", name}, 0)
	if err != nil && result != nil && strings.Contains(result.Stderr, "No such container") {
		return nil
	}
	return errors.Wrapf(err, "failed to remove container '%s'", name)
}

func waitRuntime(ctx context.Context, log zerolog.Logger, exec executor.Executor) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = runtimeProbeInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = runtimeProbeMaxInterval
	policy.MaxElapsedTime = 0
	probe := func() error {
		_, err := exec.RunCommand(ctx, []string{"docker", "info", "--format", "{{.ServerVersion}}"}, 0)
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Msgf("container runtime is not available, next probe in %v", next)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, runtimeProbeRetries), ctx)
	if err := backoff.RetryNotify(probe, bo, notify); err != nil {
		return dspcommon.WrapError(dspcommon.ErrNotReady, err, "container runtime is not available")
	}
	return nil
}

func (n *nodeTasks) installDocker(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	params := n.c.Config.Install
	bundlePath := ""
	if params.ImageBundleURL != "" {
		local, err := n.bundles.Fetch(ctx, params.ImageBundleURL)
		if err != nil {
			return nil, err
		}
		bundlePath = path.Join(params.ImageCacheDir, filepath.Base(local))
		exists, err := exec.PathExists(ctx, bundlePath)
		if err != nil {
			return nil, err
		}
		if !exists {
			content, err := os.ReadFile(local)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read image bundle '%s'", local)
			}
			if err := exec.WriteFile(ctx, bundlePath, content, executor.FileOptions{Mode: 0644}); err != nil {
				return nil, errors.Wrapf(err, "failed to copy image bundle to node '%s'", node.Hostname)
			}
		}
	}
	if _, err := exec.RunCommand(ctx, []string{"systemctl", "enable", "--now", dockerService}, 0); err != nil {
		return nil, errors.Wrapf(err, "failed to start container runtime on node '%s'", node.Hostname)
	}
	if err := waitRuntime(ctx, fc.Log, exec); err != nil {
		return nil, err
	}
	agentImage := image(params, dspcommon.AgentContainerName)
	if bundlePath != "" {
		if _, err := exec.RunCommand(ctx, []string{"docker", "image", "inspect", agentImage}, 0); err != nil {
			fc.Log.Info().Msgf("loading image bundle '%s' on node '%s'", bundlePath, node.Hostname)
			if _, err := exec.RunCommand(ctx, []string{"docker", "load", "-i", bundlePath}, 10*time.Minute); err != nil {
				return nil, errors.Wrapf(err, "failed to load image bundle on node '%s'", node.Hostname)
			}
		}
	}
	return nil, db.EnsureService(ctx, n.c.DB, node, dockerService, baseRole)
}

func (n *nodeTasks) installChrony(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	if _, err := exec.RunCommand(ctx, []string{"systemctl", "is-active", chronyService}, 0); err != nil {
		if _, err := exec.RunCommand(ctx, []string{"systemctl", "enable", "--now", chronyService}, 0); err != nil {
			return nil, errors.Wrapf(err, "failed to start %s on node '%s'", chronyService, node.Hostname)
		}
	}
	return nil, db.EnsureService(ctx, n.c.DB, node, chronyService, baseRole)
}

func exporterTarget(node *objects.Node) rpc.PrometheusTarget {
	return rpc.PrometheusTarget{IP: node.IPAddress, Port: nodeExporterPort, Hostname: node.Hostname, Path: nodeExporterPath}
}

// adminAgents returns agents of admin nodes of cluster, unreachable ones are skipped.
func (n *nodeTasks) adminAgents(ctx context.Context, log zerolog.Logger, clusterID string) ([]controller.Agent, error) {
	admins, err := n.c.DB.Nodes().List(ctx, func(node *objects.Node) bool {
		return node.ClusterID == clusterID && node.Roles.Admin && node.Status != objects.NodeStatusDeleting
	})
	if err != nil {
		return nil, err
	}
	agents := []controller.Agent{}
	for _, admin := range admins {
		agent, err := n.c.Agents.ForNode(ctx, admin)
		if err != nil {
			log.Warn().Err(err).Msgf("agent of admin node '%s' is not available", admin.Hostname)
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (n *nodeTasks) installNodeExporter(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	name := dspcommon.NodeExporterContainerName
	if !containerRunning(ctx, exec, name) {
		if err := removeContainer(ctx, exec, name); err != nil {
			return nil, err
		}
		argv := []string{"docker", "run", "-d", "--name", name, "--restart", "always", "--net", "host", "--pid", "host",
			"-v", "/:/host:ro,rslave", image(n.c.Config.Install, name),
			"--path.rootfs=/host", fmt.Sprintf("--web.listen-address=%s:%d", node.IPAddress, nodeExporterPort)}
		if _, err := exec.RunCommand(ctx, argv, 0); err != nil {
			return nil, errors.Wrapf(err, "failed to start node exporter on node '%s'", node.Hostname)
		}
	}
	agents, err := n.adminAgents(ctx, fc.Log, node.ClusterID)
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		if err := agent.PrometheusTargetAdd(ctx, exporterTarget(node)); err != nil {
			return nil, errors.Wrapf(err, "failed to register node exporter of node '%s'", node.Hostname)
		}
	}
	return nil, db.EnsureService(ctx, n.c.DB, node, name, baseRole)
}

func (n *nodeTasks) agentOptions(node *objects.Node) map[string]string {
	cfg := n.c.Config
	adminIP := cfg.RPC.AdminIP
	if adminIP == "" {
		adminIP = cfg.RPC.MyIP
	}
	return map[string]string{
		"cluster_id":              node.ClusterID,
		"hostname":                node.Hostname,
		"my_ip":                   node.IPAddress,
		"admin_ip":                adminIP,
		"admin_port":              strconv.Itoa(cfg.RPC.AdminPort),
		"agent_port":              strconv.Itoa(cfg.RPC.AgentPort),
		"enable_cephx":            strconv.FormatBool(cfg.EnableCephx),
		"log_level":               cfg.LogLevel.String(),
		"control_socket":          cfg.ControlSocket,
		"prometheus_targets_file": cfg.PrometheusTargetsFile,
		"image_namespace":         cfg.Install.ImageNamespace,
		"dspace_version":          cfg.Install.DSpaceVersion,
	}
}

func (n *nodeTasks) waitAgentReady(ctx context.Context, node *objects.Node) error {
	steps := wait.Backoff{Duration: agentReadyInterval, Factor: 1, Steps: dspcommon.AgentReadyAttempts}
	err := wait.ExponentialBackoffWithContext(ctx, steps, func(ctx context.Context) (bool, error) {
		agent, err := n.c.Agents.ForNode(ctx, node)
		if err != nil {
			return false, nil
		}
		status, err := agent.CheckDsaStatus(ctx)
		if err != nil {
			return false, nil
		}
		return status.Status == dspcommon.AgentStatusReady, nil
	})
	if wait.Interrupted(err) {
		return dspcommon.NewError(dspcommon.ErrTimeout, "agent of node '%s' is not ready after %d checks", node.Hostname, dspcommon.AgentReadyAttempts)
	}
	return err
}

func (n *nodeTasks) installAgent(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	content, err := config.RenderAgentFile(n.agentOptions(node))
	if err != nil {
		return nil, err
	}
	current, readErr := exec.ReadFile(ctx, dspcommon.AgentConfigFile)
	changed := readErr != nil || !bytes.Equal(current, content)
	if changed {
		if err := exec.WriteFile(ctx, dspcommon.AgentConfigFile, content, executor.FileOptions{Mode: 0600}); err != nil {
			return nil, errors.Wrapf(err, "failed to write agent config on node '%s'", node.Hostname)
		}
	}
	name := dspcommon.AgentContainerName
	if changed || !containerRunning(ctx, exec, name) {
		if err := removeContainer(ctx, exec, name); err != nil {
			return nil, err
		}
		argv := []string{"docker", "run", "-d", "--name", name, "--restart", "always", "--net", "host", "--pid", "host", "--privileged",
			"-v", "/etc/dspace:/etc/dspace", "-v", "/etc/ceph:/etc/ceph", "-v", "/var/lib/ceph:/var/lib/ceph",
			"-v", "/var/lib/dspace:/var/lib/dspace", "-v", "/var/log/ceph:/var/log/ceph", "-v", "/dev:/dev", "-v", "/run/udev:/run/udev",
			image(n.c.Config.Install, name), "dspace-agent", "run", "--config", dspcommon.AgentConfigFile}
		if _, err := exec.RunCommand(ctx, argv, 0); err != nil {
			return nil, errors.Wrapf(err, "failed to start agent on node '%s'", node.Hostname)
		}
	}
	if err := n.waitAgentReady(ctx, node); err != nil {
		return nil, err
	}
	if node.Roles.Admin {
		if err := n.backfillTargets(ctx, node); err != nil {
			return nil, err
		}
	}
	return nil, db.EnsureService(ctx, n.c.DB, node, dspcommon.AgentServiceName, baseRole)
}

// backfillTargets registers exporters of every cluster node with new admin node.
func (n *nodeTasks) backfillTargets(ctx context.Context, admin *objects.Node) error {
	agent, err := n.c.Agents.ForNode(ctx, admin)
	if err != nil {
		return err
	}
	nodes, err := db.ListNodes(ctx, n.c.DB, admin.ClusterID)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if node.Status == objects.NodeStatusDeleting {
			continue
		}
		if err := agent.PrometheusTargetAdd(ctx, exporterTarget(node)); err != nil {
			return errors.Wrapf(err, "failed to register node exporter of node '%s' on admin node '%s'", node.Hostname, admin.Hostname)
		}
	}
	return nil
}

func (n *nodeTasks) cephRepoContent() (string, error) {
	params := n.c.Config.Install
	if params.CephRepoURL == "" || params.CephRelease == "" {
		return "", dspcommon.NewError(dspcommon.ErrInvalid, "ceph repo is enabled, but url or release is not set")
	}
	release, err := dspcommon.GetCephRelease(params.CephRelease)
	if err != nil {
		return "", dspcommon.WrapError(dspcommon.ErrInvalid, err, "unsupported ceph release")
	}
	return fmt.Sprintf("deb %s %s main\n", params.CephRepoURL, strings.ToLower(release.Name)), nil
}

func (n *nodeTasks) installCephRepo(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	content, err := n.cephRepoContent()
	if err != nil {
		return nil, err
	}
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	if current, err := exec.ReadFile(ctx, cephRepoFile); err == nil && string(current) == content {
		return nil, nil
	}
	if err := exec.WriteFile(ctx, cephRepoFile, []byte(content), executor.FileOptions{Mode: 0644}); err != nil {
		return nil, errors.Wrapf(err, "failed to write ceph repo on node '%s'", node.Hostname)
	}
	if _, err := exec.RunCommand(ctx, []string{"apt-get", "update"}, 5*time.Minute); err != nil {
		return nil, errors.Wrapf(err, "failed to refresh package index on node '%s'", node.Hostname)
	}
	return nil, nil
}

func InstallFlowName(node *objects.Node) string {
	return "node_install_" + node.Hostname
}

// InstallFlow brings container runtime, time sync, node exporter and agent
// to node, every step is a no-op when its result is in place already.
func (i *Installer) InstallFlow(node *objects.Node) *taskflow.Flow {
	n := &nodeTasks{Installer: i, id: node.ID}
	flow := taskflow.Linear(InstallFlowName(node),
		taskflow.NewTask("InstallDocker", n.installDocker, nil),
		taskflow.NewTask("InstallChrony", n.installChrony, nil),
		taskflow.NewTask("InstallNodeExporter", n.installNodeExporter, nil),
		taskflow.NewTask("InstallDSpaceAgent", n.installAgent, nil),
	)
	if i.c.Config.Install.CephRepoEnabled {
		flow.Add(taskflow.NewTask("InstallCephRepo", n.installCephRepo, nil))
	}
	return flow
}

// Install deploys dspace services to node in creating or error status,
// node becomes active on success and error otherwise.
func (i *Installer) Install(ctx context.Context, id int64) error {
	node, err := i.c.DB.Nodes().Get(ctx, id)
	if err != nil {
		return err
	}
	from := node.Status
	updated, err := i.c.DB.Nodes().CompareAndUpdate(ctx, id,
		func(n *objects.Node) bool { return n.Status == objects.NodeStatusCreating || n.Status == objects.NodeStatusError },
		func(n *objects.Node) { n.Status = objects.NodeStatusDeploying })
	if err != nil {
		return err
	}
	if !updated {
		return dspcommon.NewError(dspcommon.ErrInvalid, "node '%s' is in '%s' status, expected '%s' or '%s'",
			node.Hostname, from, objects.NodeStatusCreating, objects.NodeStatusError)
	}
	log := dspcommon.ObjectLogger(i.c.Log, "node", node.Hostname)
	name := InstallFlowName(node)
	flow := i.c.Flows.NewTaskflow(node.ClusterID, name, i.InstallFlow(node)).
		RequireLock(name, false).
		WithArgs(map[string]any{"node_id": id, "hostname": node.Hostname})
	if _, runErr := flow.Run(ctx); runErr != nil {
		ctx = context.WithoutCancel(ctx)
		if _, err := db.NodeStatusCAS(ctx, i.c.DB, id, objects.NodeStatusDeploying, objects.NodeStatusError); err != nil {
			log.Error().Err(err).Msg("failed to mark node as error")
		}
		return runErr
	}
	if _, err := db.NodeStatusCAS(ctx, i.c.DB, id, objects.NodeStatusDeploying, objects.NodeStatusActive); err != nil {
		return err
	}
	log.Info().Msg("node is installed")
	return nil
}
