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


package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/objects"
)

type Config struct {
	// log level for all components
	LogLevel zerolog.Level
	// rpc related params
	RPC RPCParams
	// reconcilers periods and restart policy
	Reconcile ReconcileParams
	// node installation params
	Install InstallParams
	// session store and coordination backends
	Session SessionParams
	// networks node addresses must belong to
	Networks objects.NetworkRanges
	// size of worker pool for submitted work
	TaskWorkers int
	// filesystem rebase for chrooted agents
	HostPrefix string
	// cephx profile and keyring distribution
	EnableCephx bool
	// default timeout for ceph commands
	CephCommandTimeout time.Duration
	// grace period for draining workers on shutdown
	ShutdownGracePeriod time.Duration
	// agent local control socket
	ControlSocket string
	// prometheus file_sd targets file maintained by agents on admin nodes
	PrometheusTargetsFile string
}

type RPCParams struct {
	MyIP          string
	AdminIP       string
	AdminPort     int
	AgentPort     int
	APIPort       int
	WebsocketPort int
	MetricsPort   int
	CallTimeout   time.Duration
}

type ReconcileParams struct {
	OsdCheckInterval    time.Duration
	DsaCheckInterval    time.Duration
	NodeCheckInterval   time.Duration
	MonCheckInterval    time.Duration
	SlowRequestInterval time.Duration
	ServiceAutoRestart  bool
	MonOsdMinUpRatio    float64
	MonOsdMaxSplitCount int
}

type InstallParams struct {
	ImageNamespace  string
	DSpaceVersion   string
	ImageBundleURL  string
	ImageCacheDir   string
	CephRepoEnabled bool
	CephRepoURL     string
	CephRelease     string
	SSHPort         int
	SSHUser         string
	SSHKnownHosts   string
}

type SessionParams struct {
	URL             string
	SentinelMaster  string
	SentinelAddrs   []string
	CoordinationURL string
}

var defaultConfig = Config{
	LogLevel: zerolog.InfoLevel,
	RPC: RPCParams{
		AdminPort:     2080,
		AgentPort:     2081,
		APIPort:       2082,
		WebsocketPort: 2083,
		MetricsPort:   2084,
		CallTimeout:   dspcommon.DefaultRPCTimeout,
	},
	Reconcile: ReconcileParams{
		OsdCheckInterval:    5 * time.Second,
		DsaCheckInterval:    30 * time.Second,
		NodeCheckInterval:   15 * time.Second,
		MonCheckInterval:    10 * time.Second,
		SlowRequestInterval: 60 * time.Second,
		ServiceAutoRestart:  true,
		MonOsdMinUpRatio:    0.3,
		MonOsdMaxSplitCount: 32,
	},
	Install: InstallParams{
		ImageNamespace: "dspace",
		DSpaceVersion:  "v1.0",
		ImageCacheDir:  "/var/lib/dspace/images",
		SSHPort:        22,
		SSHUser:        "root",
	},
	TaskWorkers:           50,
	EnableCephx:           true,
	CephCommandTimeout:    dspcommon.RunCephCommandTimeout * time.Second,
	ShutdownGracePeriod:   30 * time.Second,
	ControlSocket:         dspcommon.DefaultControlSocket,
	PrometheusTargetsFile: "/etc/dspace/prometheus/targets/node.yaml",
}

var (
	errorMsgTmpl = "has incorrect parameter value '%s=%s', expected %s"
	debugMsgTmpl = "set '%s=%s'"
)

// Default returns copy of default configuration.
func Default() *Config {
	config := defaultConfig
	return &config
}

type parser struct {
	log    zerolog.Logger
	data   map[string]string
	errors *multierror.Error
}

func (p *parser) lookup(key string) (string, bool) {
	value, present := p.data[key]
	if !present {
		return "", false
	}
	return strings.TrimSuffix(value, "\n"), true
}

func (p *parser) fail(key, value, expected string) {
	msg := fmt.Sprintf(errorMsgTmpl, key, value, expected)
	p.log.Error().Msg(msg)
	p.errors = multierror.Append(p.errors, errors.New(msg))
}

func (p *parser) str(key string, target *string) {
	if value, present := p.lookup(key); present {
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = value
	}
}

func (p *parser) integer(key string, target *int) {
	if value, present := p.lookup(key); present {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			p.fail(key, value, "non-negative integer")
			return
		}
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = parsed
	}
}

func (p *parser) boolean(key string, target *bool) {
	if value, present := p.lookup(key); present {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			p.fail(key, value, "boolean")
			return
		}
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = parsed
	}
}

func (p *parser) ratio(key string, target *float64) {
	if value, present := p.lookup(key); present {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			p.fail(key, value, "float in range [0, 1]")
			return
		}
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = parsed
	}
}

// duration accepts go duration format or plain number of seconds.
func (p *parser) duration(key string, target *time.Duration) {
	if value, present := p.lookup(key); present {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			p.log.Debug().Msgf(debugMsgTmpl, key, value)
			*target = time.Duration(seconds) * time.Second
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			p.fail(key, value, "positive duration or number of seconds")
			return
		}
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = parsed
	}
}

func (p *parser) cidr(key string, target *string) {
	if value, present := p.lookup(key); present {
		if value != "" {
			if _, _, err := net.ParseCIDR(value); err != nil {
				p.fail(key, value, "valid cidr")
				return
			}
		}
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		*target = value
	}
}

func (p *parser) list(key string, target *[]string) {
	if value, present := p.lookup(key); present {
		p.log.Debug().Msgf(debugMsgTmpl, key, value)
		items := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*target = items
	}
}

// ReadConfiguration builds config from flat key/value data, starting from defaults.
// Malformed values keep defaults and are reported in returned error.
func ReadConfiguration(objLog zerolog.Logger, configData map[string]string) (*Config, error) {
	newConfig := defaultConfig
	p := &parser{log: objLog, data: configData}

	if logLevel, present := p.lookup("log_level"); present {
		l, err := zerolog.ParseLevel(strings.ToLower(logLevel))
		if err != nil || logLevel == "" {
			p.fail("log_level", logLevel, "valid log levels: info, debug, trace, warn, error")
		} else {
			objLog.Debug().Msgf(debugMsgTmpl, "log_level", logLevel)
			newConfig.LogLevel = l
		}
	}
	// rpc
	p.str("my_ip", &newConfig.RPC.MyIP)
	p.str("admin_ip", &newConfig.RPC.AdminIP)
	p.integer("admin_port", &newConfig.RPC.AdminPort)
	p.integer("agent_port", &newConfig.RPC.AgentPort)
	p.integer("api_port", &newConfig.RPC.APIPort)
	p.integer("websocket_port", &newConfig.RPC.WebsocketPort)
	p.integer("metrics_port", &newConfig.RPC.MetricsPort)
	p.duration("rpc_call_timeout", &newConfig.RPC.CallTimeout)
	// reconcilers
	p.duration("osd_check_interval", &newConfig.Reconcile.OsdCheckInterval)
	p.duration("dsa_check_interval", &newConfig.Reconcile.DsaCheckInterval)
	p.duration("node_check_interval", &newConfig.Reconcile.NodeCheckInterval)
	p.duration("ceph_mon_check_interval", &newConfig.Reconcile.MonCheckInterval)
	p.duration("slow_request_get_time_interval", &newConfig.Reconcile.SlowRequestInterval)
	p.boolean("service_auto_restart", &newConfig.Reconcile.ServiceAutoRestart)
	p.ratio("mon_osd_min_up_ratio", &newConfig.Reconcile.MonOsdMinUpRatio)
	p.integer("mon_osd_max_split_count", &newConfig.Reconcile.MonOsdMaxSplitCount)
	// install
	p.str("image_namespace", &newConfig.Install.ImageNamespace)
	p.str("dspace_version", &newConfig.Install.DSpaceVersion)
	p.str("image_bundle_url", &newConfig.Install.ImageBundleURL)
	p.str("image_cache_dir", &newConfig.Install.ImageCacheDir)
	p.boolean("ceph_repo_enabled", &newConfig.Install.CephRepoEnabled)
	p.str("ceph_repo_url", &newConfig.Install.CephRepoURL)
	p.str("ceph_release", &newConfig.Install.CephRelease)
	p.integer("ssh_port", &newConfig.Install.SSHPort)
	p.str("ssh_user", &newConfig.Install.SSHUser)
	p.str("ssh_known_hosts", &newConfig.Install.SSHKnownHosts)
	// session and coordination
	p.str("session_url", &newConfig.Session.URL)
	p.str("session_sentinel_master", &newConfig.Session.SentinelMaster)
	p.list("session_sentinel_addrs", &newConfig.Session.SentinelAddrs)
	p.str("coordination_url", &newConfig.Session.CoordinationURL)
	// networks
	p.cidr("admin_cidr", &newConfig.Networks.AdminCIDR)
	p.cidr("cluster_cidr", &newConfig.Networks.ClusterCIDR)
	p.cidr("public_cidr", &newConfig.Networks.PublicCIDR)
	// general
	p.integer("task_workers", &newConfig.TaskWorkers)
	p.str("host_prefix", &newConfig.HostPrefix)
	p.boolean("enable_cephx", &newConfig.EnableCephx)
	p.duration("ceph_command_timeout", &newConfig.CephCommandTimeout)
	p.duration("shutdown_grace_period", &newConfig.ShutdownGracePeriod)
	p.str("control_socket", &newConfig.ControlSocket)
	p.str("prometheus_targets_file", &newConfig.PrometheusTargetsFile)

	if newConfig.TaskWorkers == 0 {
		p.fail("task_workers", "0", "positive integer")
		newConfig.TaskWorkers = defaultConfig.TaskWorkers
	}
	return &newConfig, p.errors.ErrorOrNil()
}
