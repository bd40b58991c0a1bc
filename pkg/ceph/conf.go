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
	"sort"
	"strings"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

var sectionOrder = map[string]int{
	"global": 0,
	"mon":    1,
	"mgr":    2,
	"osd":    3,
}

func sectionLess(a, b string) bool {
	oa, aKnown := sectionOrder[a]
	ob, bKnown := sectionOrder[b]
	switch {
	case aKnown && bKnown:
		return oa < ob
	case aKnown:
		return true
	case bKnown:
		return false
	}
	return a < b
}

// RenderConfig builds ceph.conf content from group -> key -> value map.
// Known sections go first in fixed order, daemon sections like osd.N after them.
func RenderConfig(groups map[string]map[string]string) string {
	sections := make([]string, 0, len(groups))
	for section, values := range groups {
		if len(values) > 0 {
			sections = append(sections, section)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sectionLess(sections[i], sections[j]) })

	var b strings.Builder
	for idx, section := range sections {
		if idx > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[" + section + "]\n")
		for _, key := range dspcommon.SortedMapKeys(groups[section]) {
			b.WriteString(key + " = " + groups[section][key] + "\n")
		}
	}
	return b.String()
}

// ParseConfig reads ceph.conf content into group -> key -> value map.
// Comments and lines outside of any section are skipped.
func ParseConfig(content string) map[string]map[string]string {
	groups := map[string]map[string]string{}
	section := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := groups[section]; !ok {
				groups[section] = map[string]string{}
			}
			continue
		}
		if section == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		groups[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return groups
}
