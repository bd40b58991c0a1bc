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


package dspcommon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCephVersion(t *testing.T) {
	tests := []struct {
		name            string
		output          string
		expectedVersion *CephVersion
		expectedError   string
	}{
		{
			name:          "parse ceph version - empty output",
			expectedError: "failed to find supported Ceph version for specified '' version. Is version correct?",
		},
		{
			name:          "parse ceph version - minor is not supported",
			output:        "ceph version 19.2.20 (abcdef) squid (stable)",
			expectedError: "specified Ceph version 'v19.2.20' is not supported. Please use one of: [v19.2.1 v19.2.2 v19.2.3]",
		},
		{
			name:          "parse ceph version - unknown release",
			output:        "ceph version 17.2.7 (abcdef) quincy (stable)",
			expectedError: "failed to find supported Ceph version for specified 'v17.2.7' version. Is version correct?",
		},
		{
			name:   "parse ceph version - squid",
			output: "ceph version 19.2.3 (c92aebb279828e9c3c1f5d24613efca272649e62) squid (stable)",
			expectedVersion: &CephVersion{
				Name:            "Squid",
				MajorVersion:    "v19.2",
				MinorVersion:    "3",
				Order:           19,
				SupportedMinors: []string{"1", "2", "3"},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			version, err := ParseCephVersion(GetCephVersionFromOutput(test.output))
			if test.expectedError != "" {
				assert.EqualError(t, err, test.expectedError)
			} else {
				assert.Nil(t, err)
			}
			assert.Equal(t, test.expectedVersion, version)
		})
	}
}

func TestGetCephRelease(t *testing.T) {
	release, err := GetCephRelease("")
	assert.Nil(t, err)
	assert.Equal(t, LatestRelease, release)
	release, err = GetCephRelease("reef")
	assert.Nil(t, err)
	assert.Equal(t, Reef, release)
	_, err = GetCephRelease("sqid")
	assert.EqualError(t, err, "failed to find appropriate Ceph version of 'sqid' release. Is release name correct?")
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "dspace/dspace-agent:v1.0", ImageName("dspace/", "dspace-agent", "v1.0"))
	assert.Equal(t, "dspace-agent:v1.0", ImageName("", "dspace-agent", "v1.0"))
}
