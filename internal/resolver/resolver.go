// Package resolver partitions hashed entries into duplicate groups and ranks
// each group's keep candidates deterministically. It never deletes anything;
// deletion is a separate, explicitly approved step.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/wolfbed/dspx/internal/store"
)

// Group is a maximal set of entries sharing identical (size, digest).
// Members[0] is the keep candidate after ranking.
type Group struct {
	Size    int64
	Digest  string
	Members []store.FileEntry
}

// Wasted is the space reclaimable by keeping one copy.
func (g *Group) Wasted() int64 {
	return g.Size * int64(len(g.Members)-1)
}

// Resolver groups by (size, digest) and breaks keep ties with a configurable
// chain: primary device first, then shortest path depth, then lexicographic
// order. The chain exists to make output deterministic, not for correctness.
type Resolver struct {
	primaryDevice string
}

// New creates a Resolver. primaryDevice may be empty, disabling the device
// preference and leaving only the path-based tie-breaks.
func New(primaryDevice string) *Resolver {
	return &Resolver{primaryDevice: primaryDevice}
}

type groupKey struct {
	size   int64
	digest string
}

// Resolve partitions entries into groups of two or more. Entries without a
// digest (unhashable, still pending) take no part in grouping; every hashed
// entry lands in at most one group.
func (r *Resolver) Resolve(entries []store.FileEntry) []Group {
	byKey := make(map[groupKey][]store.FileEntry)
	for _, e := range entries {
		if e.Digest == "" || e.State == store.StateUnreadable {
			continue
		}
		// Size keys the map alongside the digest: a cheap pre-filter, and a
		// guard against ever comparing digests of different-length files.
		key := groupKey{size: e.Size, digest: e.Digest}
		byKey[key] = append(byKey[key], e)
	}

	groups := make([]Group, 0, len(byKey))
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		r.rank(members)
		groups = append(groups, Group{Size: key.size, Digest: key.digest, Members: members})
	}

	// Deterministic output order across runs.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size != groups[j].Size {
			return groups[i].Size > groups[j].Size
		}
		return groups[i].Digest < groups[j].Digest
	})
	return groups
}

// rank orders members so the preferred keep candidate is first.
func (r *Resolver) rank(members []store.FileEntry) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if r.primaryDevice != "" {
			aPrimary := a.DeviceID == r.primaryDevice
			bPrimary := b.DeviceID == r.primaryDevice
			if aPrimary != bPrimary {
				return aPrimary
			}
		}
		aDepth := pathDepth(a.Path)
		bDepth := pathDepth(b.Path)
		if aDepth != bDepth {
			return aDepth < bDepth
		}
		return a.Path < b.Path
	})
}

func pathDepth(path string) int {
	return strings.Count(path, string(filepath.Separator))
}
