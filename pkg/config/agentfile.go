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
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// RenderAgentFile renders flat agent options as yaml with sorted keys.
func RenderAgentFile(values map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	doc := make(yaml.MapSlice, 0, len(keys))
	for _, key := range keys {
		doc = append(doc, yaml.MapItem{Key: key, Value: values[key]})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render agent config")
	}
	return data, nil
}

func ParseAgentFile(data []byte) (map[string]string, error) {
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "failed to parse agent config")
	}
	return values, nil
}
