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
	"math"
	"strconv"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type BucketType string

const (
	BucketRoot       BucketType = "root"
	BucketDatacenter BucketType = "datacenter"
	BucketRack       BucketType = "rack"
	BucketHost       BucketType = "host"
	BucketOsd        BucketType = "osd"
)

// WeightScale is number of crush weight units in one TiB.
const WeightScale = 65536

// SizeToWeight converts bytes to crush weight units of 1/65536 TiB.
func SizeToWeight(sizeBytes int64) int64 {
	return int64(math.Round(float64(sizeBytes) / float64(int64(1)<<40) * WeightScale))
}

// WeightFromFloat converts weight reported by ceph into units.
func WeightFromFloat(weight float64) int64 {
	return int64(math.Round(weight * WeightScale))
}

func FormatWeight(units int64) string {
	return strconv.FormatFloat(float64(units)/WeightScale, 'f', -1, 64)
}

func (c *Client) BucketAdd(ctx context.Context, name string, bucketType BucketType) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "add-bucket", name, string(bucketType))
	return err
}

// BucketGet looks up crush bucket by name in osd tree.
func (c *Client) BucketGet(ctx context.Context, name string) (*dspcommon.OsdTreeNode, error) {
	tree, err := c.OsdTree(ctx)
	if err != nil {
		return nil, err
	}
	for _, node := range tree.Nodes {
		if node.ID < 0 && node.Name == name {
			bucket := node
			return &bucket, nil
		}
	}
	return nil, dspcommon.NewError(dspcommon.ErrNotFound, "crush bucket '%s' not found", name)
}

func (c *Client) BucketMove(ctx context.Context, name string, parentType BucketType, parentName string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "move", name, string(parentType)+"="+parentName)
	return err
}

// BucketRemove removes empty bucket, ceph refuses to remove bucket with items.
func (c *Client) BucketRemove(ctx context.Context, name string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "rm", name)
	return err
}

// OsdAdd places osd under host bucket with weight derived from device size.
func (c *Client) OsdAdd(ctx context.Context, osdID string, sizeBytes int64, host string) error {
	return c.OsdCrushSet(ctx, osdID, SizeToWeight(sizeBytes), host)
}

// OsdCrushSet adds or moves osd to host bucket and sets its weight.
func (c *Client) OsdCrushSet(ctx context.Context, osdID string, units int64, host string) error {
	_, err := c.run(ctx, osdHints, "osd", "crush", "set", osdName(osdID), FormatWeight(units), "host="+host)
	return err
}

func (c *Client) OsdCrushReweight(ctx context.Context, osdID string, units int64) error {
	_, err := c.run(ctx, osdHints, "osd", "crush", "reweight", osdName(osdID), FormatWeight(units))
	return err
}

// OsdCrushUnlink detaches osd from given bucket keeping other links.
func (c *Client) OsdCrushUnlink(ctx context.Context, osdID, bucket string) error {
	_, err := c.run(ctx, osdHints, "osd", "crush", "unlink", osdName(osdID), bucket)
	return err
}
