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
	"strconv"
	"strings"
	"time"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
)

// devPath returns block device path for kernel name like 'sdb' or 'nvme0n1p1'.
func devPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

// devName strips '/dev/' prefix from device path.
func devName(path string) string {
	return strings.TrimPrefix(path, "/dev/")
}

// partitionName follows kernel naming, disks ending with digit get 'p' separator.
func partitionName(disk string, number int) string {
	disk = devName(disk)
	if disk != "" && disk[len(disk)-1] >= '0' && disk[len(disk)-1] <= '9' {
		return disk + "p" + strconv.Itoa(number)
	}
	return disk + strconv.Itoa(number)
}

func run(ctx context.Context, exec executor.Executor, timeout time.Duration, argv ...string) (string, error) {
	result, err := exec.RunCommand(ctx, argv, timeout)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// commandFailed reports whether command ran and exited non-zero.
func commandFailed(err error) bool {
	_, ok := dspcommon.GetCommandError(err)
	return ok
}

// writeIfChanged writes file only when content differs from current one.
func writeIfChanged(ctx context.Context, exec executor.Executor, path, content string, opts executor.FileOptions) (bool, error) {
	current, err := exec.ReadFile(ctx, path)
	if err == nil && dspcommon.GetStringSha256(string(current)) == dspcommon.GetStringSha256(content) {
		return false, nil
	}
	if err != nil && !dspcommon.IsNotFound(err) {
		return false, err
	}
	if err := exec.WriteFile(ctx, path, []byte(content), opts); err != nil {
		return false, err
	}
	return true, nil
}
