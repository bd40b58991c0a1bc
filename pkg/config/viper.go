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
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, DSPACE_ADMIN_PORT sets admin_port.
const EnvPrefix = "DSPACE"

// keys read from environment, besides config keys the process identity
// keys used by agent and admin commands
var envKeys = []string{
	"log_level",
	"my_ip", "admin_ip", "admin_port", "agent_port", "api_port", "websocket_port", "metrics_port", "rpc_call_timeout",
	"osd_check_interval", "dsa_check_interval", "node_check_interval", "ceph_mon_check_interval",
	"slow_request_get_time_interval", "service_auto_restart", "mon_osd_min_up_ratio", "mon_osd_max_split_count",
	"image_namespace", "dspace_version", "image_bundle_url", "image_cache_dir",
	"ceph_repo_enabled", "ceph_repo_url", "ceph_release", "ssh_port", "ssh_user", "ssh_known_hosts",
	"session_url", "session_sentinel_master", "session_sentinel_addrs", "coordination_url",
	"admin_cidr", "cluster_cidr", "public_cidr",
	"task_workers", "host_prefix", "enable_cephx", "ceph_command_timeout", "shutdown_grace_period",
	"control_socket", "prometheus_targets_file",
	"cluster_id", "hostname", "ssh_key_file",
}

// NewViper reads optional yaml config file and binds environment
// overrides of every known key.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "failed to bind env of '%s'", key)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file '%s'", configFile)
		}
	}
	return v, nil
}

// FromViper flattens every set viper key into plain strings.
func FromViper(v *viper.Viper) map[string]string {
	data := map[string]string{}
	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		value := v.Get(key)
		switch typed := value.(type) {
		case nil:
			// bound env which is not set
		case []interface{}:
			items := make([]string, 0, len(typed))
			for _, item := range typed {
				items = append(items, fmt.Sprint(item))
			}
			data[key] = strings.Join(items, ",")
		case []string:
			data[key] = strings.Join(typed, ",")
		default:
			data[key] = fmt.Sprint(typed)
		}
	}
	return data
}

// Load reads configuration from viper instance: config file, env and bound flags.
func Load(objLog zerolog.Logger, v *viper.Viper) (*Config, error) {
	return ReadConfiguration(objLog, FromViper(v))
}
