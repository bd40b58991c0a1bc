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
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

func TestReadConfiguration(t *testing.T) {
	log := dspcommon.InitLogger(false)
	tests := []struct {
		name           string
		data           map[string]string
		expectedConfig func() *Config
		expectedError  string
	}{
		{
			name:           "no params provided - defaults",
			data:           map[string]string{},
			expectedConfig: Default,
		},
		{
			name: "all kinds of params are set",
			data: map[string]string{
				"log_level":               "debug",
				"my_ip":                   "10.0.0.5",
				"admin_port":              "3080",
				"task_workers":            "10",
				"osd_check_interval":      "7",
				"ceph_mon_check_interval": "1m",
				"service_auto_restart":    "false",
				"mon_osd_min_up_ratio":    "0.5",
				"session_sentinel_addrs":  "10.0.0.1:26379, 10.0.0.2:26379,",
				"admin_cidr":              "10.0.0.0/24",
				"host_prefix":             "/host\n",
			},
			expectedConfig: func() *Config {
				config := Default()
				config.LogLevel = zerolog.DebugLevel
				config.RPC.MyIP = "10.0.0.5"
				config.RPC.AdminPort = 3080
				config.TaskWorkers = 10
				config.Reconcile.OsdCheckInterval = 7 * time.Second
				config.Reconcile.MonCheckInterval = time.Minute
				config.Reconcile.ServiceAutoRestart = false
				config.Reconcile.MonOsdMinUpRatio = 0.5
				config.Session.SentinelAddrs = []string{"10.0.0.1:26379", "10.0.0.2:26379"}
				config.Networks.AdminCIDR = "10.0.0.0/24"
				config.HostPrefix = "/host"
				return config
			},
		},
		{
			name: "broken params keep defaults",
			data: map[string]string{
				"log_level":            "verbose",
				"agent_port":           "port",
				"service_auto_restart": "maybe",
				"mon_osd_min_up_ratio": "1.5",
				"osd_check_interval":   "-1s",
				"public_cidr":          "10.0.0.0/40",
				"task_workers":         "0",
			},
			expectedConfig: Default,
			expectedError: strings.Join([]string{
				"has incorrect parameter value 'log_level=verbose', expected valid log levels: info, debug, trace, warn, error",
				"has incorrect parameter value 'agent_port=port', expected non-negative integer",
				"has incorrect parameter value 'osd_check_interval=-1s', expected positive duration or number of seconds",
				"has incorrect parameter value 'service_auto_restart=maybe', expected boolean",
				"has incorrect parameter value 'mon_osd_min_up_ratio=1.5', expected float in range [0, 1]",
				"has incorrect parameter value 'public_cidr=10.0.0.0/40', expected valid cidr",
				"has incorrect parameter value 'task_workers=0', expected positive integer",
			}, "\n"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config, err := ReadConfiguration(log, test.data)
			if test.expectedError != "" {
				for _, line := range strings.Split(test.expectedError, "\n") {
					assert.Contains(t, err.Error(), line)
				}
			} else {
				assert.Nil(t, err)
			}
			assert.Equal(t, test.expectedConfig(), config)
		})
	}
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	v.Set("admin_ip", "10.0.0.1")
	v.Set("session_sentinel_addrs", []string{"a:1", "b:2"})
	v.Set("task_workers", 5)
	config, err := Load(dspcommon.InitLogger(false), v)
	assert.Nil(t, err)
	assert.Equal(t, "10.0.0.1", config.RPC.AdminIP)
	assert.Equal(t, []string{"a:1", "b:2"}, config.Session.SentinelAddrs)
	assert.Equal(t, 5, config.TaskWorkers)
}

func TestAgentFile(t *testing.T) {
	data, err := RenderAgentFile(map[string]string{"my_ip": "10.10.0.12", "admin_ip": "10.10.0.11", "enable_cephx": "true"})
	require.NoError(t, err)
	assert.Equal(t, "admin_ip: 10.10.0.11\nenable_cephx: \"true\"\nmy_ip: 10.10.0.12\n", string(data))

	values, err := ParseAgentFile(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"my_ip": "10.10.0.12", "admin_ip": "10.10.0.11", "enable_cephx": "true"}, values)

	_, err = ParseAgentFile([]byte("my_ip: [broken"))
	assert.Error(t, err)
}
