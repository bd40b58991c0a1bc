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
	"crypto/sha256"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func Contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var GetCurrentTime = time.Now

func ShowObjectDiff(l zerolog.Logger, oldObject, newObject interface{}) {
	oldObjectType := fmt.Sprintf("%T", oldObject)
	newObjectType := fmt.Sprintf("%T", newObject)
	if oldObjectType != newObjectType {
		l.Error().Msgf("can't compare two different object types: %s and %s", oldObjectType, newObjectType)
		return
	}
	diff := cmp.Diff(oldObject, newObject)
	if diff != "" {
		l.Debug().Msgf("object %s has changed, diff:\n%s", oldObjectType, diff)
	}
}

func SortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func GetStringSha256(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

// NewToken returns random 32 chars hex token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IPInCIDR checks address belongs to network, empty cidr accepts any valid address.
func IPInCIDR(ip, cidr string) error {
	addr := net.ParseIP(ip)
	if addr == nil {
		return NewError(ErrInvalid, "'%s' is not a valid ip address", ip)
	}
	if cidr == "" {
		return nil
	}
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return WrapError(ErrInvalid, err, "failed to parse cidr '%s'", cidr)
	}
	if !network.Contains(addr) {
		return NewError(ErrInvalid, "ip address '%s' is not in network '%s'", ip, cidr)
	}
	return nil
}

// ShellQuote joins argv into single shell command line.
func ShellQuote(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		if arg != "" && strings.IndexFunc(arg, needsQuote) < 0 {
			quoted = append(quoted, arg)
			continue
		}
		quoted = append(quoted, "'"+strings.ReplaceAll(arg, "'", `'"'"'`)+"'")
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,@+%", r):
		return false
	}
	return true
}
