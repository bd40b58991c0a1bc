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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

func osdName(osdID string) string {
	return "osd." + osdID
}

func (c *Client) OsdTree(ctx context.Context) (*dspcommon.OsdTree, error) {
	tree := &dspcommon.OsdTree{}
	if err := c.runAndParse(ctx, genericHints, tree, "osd", "tree"); err != nil {
		return nil, err
	}
	return tree, nil
}

func (c *Client) OsdStat(ctx context.Context) (*dspcommon.OsdStat, error) {
	stat := &dspcommon.OsdStat{}
	if err := c.runAndParse(ctx, genericHints, stat, "osd", "stat"); err != nil {
		return nil, err
	}
	return stat, nil
}

func (c *Client) OsdDf(ctx context.Context) (*dspcommon.OsdDF, error) {
	df := &dspcommon.OsdDF{}
	if err := c.runAndParse(ctx, genericHints, df, "osd", "df"); err != nil {
		return nil, err
	}
	return df, nil
}

func (c *Client) OsdDump(ctx context.Context) (*dspcommon.CephOsdDump, error) {
	dump := &dspcommon.CephOsdDump{}
	if err := c.runAndParse(ctx, genericHints, dump, "osd", "dump"); err != nil {
		return nil, err
	}
	return dump, nil
}

func (c *Client) OsdMetadata(ctx context.Context, osdID string) (*dspcommon.OsdMetadataInfo, error) {
	metadata := &dspcommon.OsdMetadataInfo{}
	if err := c.runAndParse(ctx, osdHints, metadata, "osd", "metadata", osdID); err != nil {
		return nil, err
	}
	return metadata, nil
}

// OsdSize returns bluestore device size reported by osd metadata.
func (c *Client) OsdSize(ctx context.Context, osdID string) (int64, error) {
	metadata, err := c.OsdMetadata(ctx, osdID)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(metadata.BluestoreSize, 10, 64)
	if err != nil {
		return 0, dspcommon.WrapError(dspcommon.ErrCeph, err, "osd.%s reports invalid bluestore_bdev_size '%s'", osdID, metadata.BluestoreSize)
	}
	return size, nil
}

// OsdNew allocates osd id for given osd fsid, existing id is returned for known fsid.
func (c *Client) OsdNew(ctx context.Context, fsid string) (string, error) {
	output, err := c.run(ctx, osdHints, "osd", "new", fsid)
	if err != nil {
		return "", err
	}
	output = strings.TrimSpace(output)
	created := struct {
		OsdID *int `json:"osdid"`
	}{}
	if json.Unmarshal([]byte(output), &created) == nil && created.OsdID != nil {
		return strconv.Itoa(*created.OsdID), nil
	}
	if _, err := strconv.Atoi(output); err != nil {
		return "", errors.Errorf("unexpected output for 'osd new %s': %s", fsid, output)
	}
	return output, nil
}

func (c *Client) OsdDown(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "osd", "down", osdName(osdID))
	return err
}

func (c *Client) OsdOut(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "osd", "out", osdName(osdID))
	return err
}

func (c *Client) OsdIn(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "osd", "in", osdName(osdID))
	return err
}

func (c *Client) OsdCrushRemove(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "osd", "crush", "rm", osdName(osdID))
	return err
}

func (c *Client) OsdRemove(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "osd", "rm", osdName(osdID))
	return err
}

func (c *Client) OsdAuthDel(ctx context.Context, osdID string) error {
	_, err := c.run(ctx, osdHints, "auth", "del", osdName(osdID))
	return err
}

// OsdRemoveFromCluster runs down, out, crush rm, rm and auth del for osd.
// Already removed parts are skipped, so operation may be repeated.
func (c *Client) OsdRemoveFromCluster(ctx context.Context, osdID string) error {
	steps := []func(context.Context, string) error{c.OsdDown, c.OsdOut, c.OsdCrushRemove, c.OsdRemove, c.OsdAuthDel}
	for _, step := range steps {
		if err := step(ctx, osdID); err != nil && !dspcommon.IsNotFound(err) {
			return errors.Wrapf(err, "failed to remove osd.%s from cluster", osdID)
		}
	}
	c.log.Info().Msgf("osd.%s removed from cluster", osdID)
	return nil
}
