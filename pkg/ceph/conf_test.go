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


package ceph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderConfig(t *testing.T) {
	tests := []struct {
		name     string
		groups   map[string]map[string]string
		expected string
	}{
		{
			name:     "empty",
			groups:   map[string]map[string]string{},
			expected: "",
		},
		{
			name: "sections ordered, keys sorted",
			groups: map[string]map[string]string{
				"osd.3":  {"osd_memory_target": "4294967296"},
				"osd":    {"osd_max_backfills": "1"},
				"global": {"mon_host": "10.10.0.11", "fsid": "8668f062-3faa-358a-85f3-f80fe6c1e306"},
				"mon":    {"mon_allow_pool_delete": "true"},
				"osd.10": {"osd_memory_target": "2147483648"},
				"client": {},
			},
			expected: "[global]\n" +
				"fsid = 8668f062-3faa-358a-85f3-f80fe6c1e306\n" +
				"mon_host = 10.10.0.11\n" +
				"\n" +
				"[mon]\n" +
				"mon_allow_pool_delete = true\n" +
				"\n" +
				"[osd]\n" +
				"osd_max_backfills = 1\n" +
				"\n" +
				"[osd.10]\n" +
				"osd_memory_target = 2147483648\n" +
				"\n" +
				"[osd.3]\n" +
				"osd_memory_target = 4294967296\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, RenderConfig(test.groups))
		})
	}
}

func TestParseConfig(t *testing.T) {
	content := "# managed by dspace\n" +
		"orphan = value\n" +
		"[global]\n" +
		"fsid = 8668f062-3faa-358a-85f3-f80fe6c1e306\n" +
		"mon_host=10.10.0.11,10.10.0.12\n" +
		"; disabled\n" +
		"\n" +
		"[osd.3]\n" +
		"  osd_memory_target = 4294967296  \n" +
		"broken line\n"
	expected := map[string]map[string]string{
		"global": {
			"fsid":     "8668f062-3faa-358a-85f3-f80fe6c1e306",
			"mon_host": "10.10.0.11,10.10.0.12",
		},
		"osd.3": {"osd_memory_target": "4294967296"},
	}
	groups := ParseConfig(content)
	assert.Equal(t, expected, groups)
	assert.Equal(t, groups, ParseConfig(RenderConfig(groups)))
}
