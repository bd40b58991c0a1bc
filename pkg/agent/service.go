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


package agent

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/rpc"
)

const agentLogDir = "/var/log/dspace"

var serviceNameRe = regexp.MustCompile(`^[A-Za-z0-9@._:-]+$`)

type logLocation struct {
	dir     string
	pattern string
}

// log files per service type
var logLocations = map[string]logLocation{
	"ceph": {dir: dspcommon.CephLogDir, pattern: "ceph.*"},
	"mon":  {dir: dspcommon.CephLogDir, pattern: "ceph-mon.*"},
	"mgr":  {dir: dspcommon.CephLogDir, pattern: "ceph-mgr.*"},
	"osd":  {dir: dspcommon.CephLogDir, pattern: "ceph-osd.*"},
	"rgw":  {dir: dspcommon.CephLogDir, pattern: "ceph-client.rgw.*"},
	"dsa":  {dir: agentLogDir, pattern: "*"},
}

type serviceModule struct {
	log        zerolog.Logger
	exec       executor.Executor
	hostPrefix string
	timeout    time.Duration
}

func (m serviceModule) register(r *rpc.Router) {
	r.Register(rpc.MethodServiceRestart, rpc.Typed(m.restart))
	r.Register(rpc.MethodServiceStop, rpc.Typed(m.stop))
	r.Register(rpc.MethodGetLogfileMetadata, rpc.Typed(m.logfileMetadata))
}

func (m serviceModule) systemctl(ctx context.Context, action, name string) error {
	if !serviceNameRe.MatchString(name) {
		return dspcommon.NewError(dspcommon.ErrInvalid, "invalid service name '%s'", name)
	}
	if _, err := run(ctx, m.exec, m.timeout, "systemctl", action, name); err != nil {
		return errors.Wrapf(err, "failed to %s service '%s'", action, name)
	}
	m.log.Info().Msgf("service '%s' %s done", name, action)
	return nil
}

func (m serviceModule) restart(ctx context.Context, req rpc.ServiceRequest) (any, error) {
	return nil, m.systemctl(ctx, "restart", req.Name)
}

func (m serviceModule) stop(ctx context.Context, req rpc.ServiceRequest) (any, error) {
	return nil, m.systemctl(ctx, "stop", req.Name)
}

// parseFindOutput reads 'name<TAB>size<TAB>mtime' lines of find -printf.
func parseFindOutput(dir, output string) []rpc.LogfileMetadata {
	files := []rpc.LogfileMetadata{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		mtime, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		files = append(files, rpc.LogfileMetadata{
			Name:       fields[0],
			Directory:  dir,
			Size:       size,
			ModifiedAt: time.Unix(int64(mtime), 0).UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

func (m serviceModule) logfileMetadata(ctx context.Context, req rpc.LogfileRequest) ([]rpc.LogfileMetadata, error) {
	location, ok := logLocations[req.ServiceType]
	if !ok {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "unknown service type '%s'", req.ServiceType)
	}
	dir := executor.RebasePath(m.hostPrefix, location.dir)
	exists, err := m.exec.PathExists(ctx, location.dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []rpc.LogfileMetadata{}, nil
	}
	output, err := run(ctx, m.exec, m.timeout, "find", dir, "-maxdepth", "1", "-type", "f", "-name", location.pattern, "-printf", `%f\t%s\t%T@\n`)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list logs of '%s'", req.ServiceType)
	}
	return parseFindOutput(location.dir, output), nil
}
