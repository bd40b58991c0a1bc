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
	"context"
	"fmt"
	"strings"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// PoolRef names pool for rbd operations. Images of erasure coded pools live
// in replicated metadata pool and keep data in the erasure coded one.
type PoolRef struct {
	Name    string
	Erasure bool
}

// RbdPool returns name of the pool holding rbd images and headers.
func (p PoolRef) RbdPool() string {
	if p.Erasure {
		return p.Name + dspcommon.ErasurePoolMetadataSuffix
	}
	return p.Name
}

func (p PoolRef) image(name string) string {
	return p.RbdPool() + "/" + name
}

func (p PoolRef) snap(image, snap string) string {
	return p.image(image) + "@" + snap
}

type RbdImageInfo struct {
	Name     string   `json:"name"`
	Size     int64    `json:"size"`
	Objects  int      `json:"objects"`
	Order    int      `json:"order"`
	DataPool string   `json:"data_pool,omitempty"`
	Features []string `json:"features"`
	Parent   *struct {
		Pool     string `json:"pool"`
		Image    string `json:"image"`
		Snapshot string `json:"snapshot"`
	} `json:"parent,omitempty"`
}

// sizeArg converts bytes to rbd size argument in MiB, rounding up.
func sizeArg(sizeBytes int64) string {
	mib := (sizeBytes + (1<<20 - 1)) >> 20
	if mib < 1 {
		mib = 1
	}
	return fmt.Sprintf("%dM", mib)
}

func (c *Client) RbdCreate(ctx context.Context, pool PoolRef, image string, sizeBytes int64) error {
	args := []string{"create", pool.image(image), "--size", sizeArg(sizeBytes)}
	if pool.Erasure {
		args = append(args, "--data-pool", pool.Name)
	}
	_, err := c.rbd(ctx, args...)
	return err
}

func (c *Client) RbdRemove(ctx context.Context, pool PoolRef, image string) error {
	_, err := c.rbd(ctx, "rm", pool.image(image))
	return err
}

func (c *Client) RbdRename(ctx context.Context, pool PoolRef, image, newName string) error {
	_, err := c.rbd(ctx, "rename", pool.image(image), pool.image(newName))
	return err
}

func (c *Client) RbdResize(ctx context.Context, pool PoolRef, image string, sizeBytes int64) error {
	_, err := c.rbd(ctx, "resize", pool.image(image), "--size", sizeArg(sizeBytes), "--allow-shrink")
	return err
}

// RbdClone clones protected snapshot, each pool name is rewritten by its own type.
func (c *Client) RbdClone(ctx context.Context, srcPool PoolRef, image, snap string, dstPool PoolRef, dstImage string) error {
	args := []string{"clone", srcPool.snap(image, snap), dstPool.image(dstImage)}
	if dstPool.Erasure {
		args = append(args, "--data-pool", dstPool.Name)
	}
	_, err := c.rbd(ctx, args...)
	return err
}

func (c *Client) RbdFlatten(ctx context.Context, pool PoolRef, image string) error {
	_, err := c.rbd(ctx, "flatten", pool.image(image))
	return err
}

func (c *Client) RbdInfo(ctx context.Context, pool PoolRef, image string) (*RbdImageInfo, error) {
	cmd := "rbd info " + pool.image(image)
	output, err := c.execute(ctx, "rbd", genericHints, true, "info", pool.image(image))
	if err != nil {
		return nil, err
	}
	info := &RbdImageInfo{}
	if err := parseJSON(cmd, output, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) RbdList(ctx context.Context, pool PoolRef) ([]string, error) {
	cmd := "rbd ls " + pool.RbdPool()
	output, err := c.execute(ctx, "rbd", genericHints, true, "ls", pool.RbdPool())
	if err != nil {
		return nil, err
	}
	images := []string{}
	if strings.TrimSpace(output) == "" {
		return images, nil
	}
	if err := parseJSON(cmd, output, &images); err != nil {
		return nil, err
	}
	return images, nil
}

func (c *Client) RbdSnapCreate(ctx context.Context, pool PoolRef, image, snap string) error {
	_, err := c.rbd(ctx, "snap", "create", pool.snap(image, snap))
	return err
}

func (c *Client) RbdSnapRemove(ctx context.Context, pool PoolRef, image, snap string) error {
	_, err := c.rbd(ctx, "snap", "rm", pool.snap(image, snap))
	return err
}

func (c *Client) RbdSnapRename(ctx context.Context, pool PoolRef, image, snap, newName string) error {
	_, err := c.rbd(ctx, "snap", "rename", pool.snap(image, snap), pool.snap(image, newName))
	return err
}

func (c *Client) RbdSnapProtect(ctx context.Context, pool PoolRef, image, snap string) error {
	_, err := c.rbd(ctx, "snap", "protect", pool.snap(image, snap))
	return err
}

func (c *Client) RbdSnapUnprotect(ctx context.Context, pool PoolRef, image, snap string) error {
	_, err := c.rbd(ctx, "snap", "unprotect", pool.snap(image, snap))
	return err
}

func (c *Client) RbdSnapRollback(ctx context.Context, pool PoolRef, image, snap string) error {
	_, err := c.rbd(ctx, "snap", "rollback", pool.snap(image, snap))
	return err
}
