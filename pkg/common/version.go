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
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

type CephVersion struct {
	// ceph release name
	Name string
	// ceph major version
	MajorVersion string
	// ceph minor version
	MinorVersion string
	// major version for simple compare with other versions
	Order int
	// minor versions supported and available to use
	SupportedMinors []string
}

var AvailableCephVersions = []*CephVersion{Squid, Reef}

var (
	Squid = &CephVersion{
		Name:            "Squid",
		MajorVersion:    "v19.2",
		Order:           19,
		SupportedMinors: []string{"1", "2", "3"},
	}
	Reef = &CephVersion{
		Name:            "Reef",
		MajorVersion:    "v18.2",
		Order:           18,
		SupportedMinors: []string{"4", "6", "7"},
	}
	LatestRelease = Squid
)

var cephVersionOutputRegexp = regexp.MustCompile(`ceph version (\d+\.\d+\.\d+)`)

// GetCephVersionFromOutput parses 'ceph version' output into v<major>.<minor>.<patch>.
func GetCephVersionFromOutput(output string) string {
	match := cephVersionOutputRegexp.FindStringSubmatch(output)
	if len(match) < 2 {
		return ""
	}
	return "v" + match[1]
}

func ParseCephVersion(version string) (*CephVersion, error) {
	var cephVersion *CephVersion
	for _, supported := range AvailableCephVersions {
		if strings.HasPrefix(version, supported.MajorVersion) {
			minorVersion := strings.TrimPrefix(version, supported.MajorVersion+".")
			if Contains(supported.SupportedMinors, minorVersion) {
				cephVersion = &CephVersion{
					Name:            supported.Name,
					MajorVersion:    supported.MajorVersion,
					MinorVersion:    minorVersion,
					Order:           supported.Order,
					SupportedMinors: supported.SupportedMinors,
				}
				break
			}
			supportedMinors := []string{}
			for _, minor := range supported.SupportedMinors {
				supportedMinors = append(supportedMinors, fmt.Sprintf("%s.%s", supported.MajorVersion, minor))
			}
			return nil, errors.Errorf("specified Ceph version '%s' is not supported. Please use one of: %v", version, supportedMinors)
		}
	}
	if cephVersion == nil {
		return nil, errors.Errorf("failed to find supported Ceph version for specified '%s' version. Is version correct?", version)
	}
	return cephVersion, nil
}

// GetCephRelease resolves release by name, empty name means latest release.
func GetCephRelease(name string) (*CephVersion, error) {
	if name == "" {
		return LatestRelease, nil
	}
	for _, version := range AvailableCephVersions {
		if strings.EqualFold(name, version.Name) {
			return version, nil
		}
	}
	return nil, errors.Errorf("failed to find appropriate Ceph version of '%s' release. Is release name correct?", name)
}

// ImageName builds container image reference for dspace component.
func ImageName(namespace, name, version string) string {
	if namespace == "" {
		return fmt.Sprintf("%s:%s", name, version)
	}
	return fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(namespace, "/"), name, version)
}
