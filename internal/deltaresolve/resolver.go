// Package deltaresolve implements the fixed-point engine that materializes
// delta-encoded objects against bases that may themselves be deltas,
// resolved in whatever order they arrived in the pack.
package deltaresolve

import (
	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitpack"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

// Stats summarizes one Resolve run, for logging and metrics.
type Stats struct {
	Passes        int
	DeltasApplied int
}

// Resolve drains stage.Deltas against stage.Objects (and, for bases already
// on disk from a prior fetch, against store), writing every resolved
// object through store and inserting it into stage.Objects so later deltas
// in the same pass can resolve against it immediately.
//
// Each pass walks the remaining queue once. A delta whose base isn't yet
// available is carried to the next pass. If an entire pass makes no
// progress, the fetch cannot complete: UnresolvableDelta.
func Resolve(stage *gitpack.Stage, store *objstore.Store) (Stats, error) {
	var stats Stats
	pending := stage.Deltas

	for len(pending) > 0 {
		stats.Passes++
		next := pending[:0]
		progressed := false

		for _, d := range pending {
			base, _, ok := lookupBase(stage, store, d)
			if !ok {
				next = append(next, d)
				continue
			}

			result, err := gitpack.ApplyDelta(base.Payload, d)
			if err != nil {
				return stats, err
			}
			resultHash := objstore.Hash(base.Kind, result)
			if _, err := store.Write(base.Kind, result); err != nil {
				return stats, err
			}
			stage.Objects[resultHash] = gitpack.StagedObject{Kind: base.Kind, Payload: result}
			stage.RecordResolvedOffset(d.SelfOffset(), resultHash)

			progressed = true
			stats.DeltasApplied++
		}

		if !progressed {
			return stats, giterrors.New(giterrors.UnresolvableDelta,
				"no delta in this pass resolved; at least one base is missing from the pack and the local store")
		}
		pending = next
	}
	return stats, nil
}

// lookupBase finds a delta's base payload, whether it names its base by
// hash (ref-delta) or by pack offset (ofs-delta, resolved via the stage's
// offset table once the base itself has resolved).
func lookupBase(stage *gitpack.Stage, store *objstore.Store, d gitpack.Delta) (gitpack.StagedObject, githash.Hash, bool) {
	baseHash := d.BaseRef
	if d.FromOfs {
		h, ok := stage.HashForOffset(d.BaseOffset)
		if !ok {
			return gitpack.StagedObject{}, githash.Hash{}, false
		}
		baseHash = h
	}

	if obj, ok := stage.Objects[baseHash]; ok {
		return obj, baseHash, true
	}
	if store.Exists(baseHash) {
		o, err := store.Read(baseHash)
		if err != nil {
			return gitpack.StagedObject{}, githash.Hash{}, false
		}
		payload, err := o.Payload()
		if err != nil {
			return gitpack.StagedObject{}, githash.Hash{}, false
		}
		staged := gitpack.StagedObject{Kind: o.Kind, Payload: payload}
		stage.Objects[baseHash] = staged
		return staged, baseHash, true
	}
	return gitpack.StagedObject{}, githash.Hash{}, false
}
