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


package crush

import "math"

const (
	MinPgNum = 8
	MaxPgNum = 1 << 16
	// upper bound of (pg_num * 3) / osd_count
	MaxPgPerOsd = 250
	pgPerOsd    = 100
)

// PgNum returns power of two pg count for pool of given size (replicas or
// k+m) spread over osdCount osds.
func PgNum(osdCount, size int) int {
	if osdCount <= 0 || size <= 0 {
		return MinPgNum
	}
	target := float64(pgPerOsd*osdCount) / float64(size)
	pgNum := 1
	if target >= 1 {
		pgNum = 1 << int(math.Floor(math.Log2(target)))
	}
	for pgNum > MinPgNum && (pgNum*3)/osdCount >= MaxPgPerOsd {
		pgNum >>= 1
	}
	if pgNum < MinPgNum {
		pgNum = MinPgNum
	}
	if pgNum > MaxPgNum {
		pgNum = MaxPgNum
	}
	return pgNum
}

// ShouldBumpPg returns new pg count when pool grown to osdCount osds needs
// more pgs. Bump is suppressed when per-osd split reaches maxSplit.
func ShouldBumpPg(current, osdCount, size, maxSplit int) (int, bool) {
	target := PgNum(osdCount, size)
	if target <= current || osdCount <= 0 {
		return current, false
	}
	split := float64(target-current) / float64(osdCount)
	if maxSplit > 0 && split >= float64(maxSplit) {
		return current, false
	}
	return target, true
}
