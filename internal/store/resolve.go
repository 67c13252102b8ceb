// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// lookup returns the snapshot that field 'i' resolves to: the view's own if
// the field is set there, otherwise the current snapshot of the nearest
// prototype that sets it. Prototype snapshots are loaded at call time, so a
// commit to a prototype is visible through every derived view.
func (o *Object) lookup(i int) (*snapshot, bool) {
	if o.data.set[i] {
		return o.data, true
	}
	if !o.prototypes {
		return nil, false
	}
	proto := o.proto
	for depth := 0; proto.IsValid(); depth++ {
		if depth == maxChainDepth {
			log.Errorf("prototype chain of %s doesn't end", o.rid)
			return nil, false
		}
		ps := o.store.live(proto)
		if ps == nil {
			return nil, false
		}
		if d := ps.data.Load(); d != nil && d.set[i] {
			return d, true
		}
		proto = ps.prototypeRID()
	}
	return nil, false
}

// resolveSet returns the members of set field 'i' as seen by this view.
func (o *Object) resolveSet(i int) map[core.RID]struct{} {
	out := make(map[core.RID]struct{})
	o.store.collectSet(o.data, o.proto, i, o.prototypes, out, 0)
	return out
}

// collectSet adds the members of set field 'i' at level 'd' to 'out'. The
// prototype's resolved members go in first, filtered by the tombstones at
// this level, then the members added at this level.
func (s *Store) collectSet(d *snapshot, proto core.RID, i int, prototypes bool, out map[core.RID]struct{}, depth int) {
	var local *subObjectSet
	if d != nil && d.set[i] {
		local = d.values[i].(*subObjectSet)
	}

	if prototypes && proto.IsValid() && depth < maxChainDepth {
		if ps := s.live(proto); ps != nil {
			inherited := make(map[core.RID]struct{})
			s.collectSet(ps.data.Load(), ps.prototypeRID(), i, true, inherited, depth+1)
			for r := range inherited {
				if local != nil {
					if _, hidden := local.prototypeRemoved[r]; hidden {
						continue
					}
				}
				out[r] = struct{}{}
			}
		}
	}

	if local != nil {
		for r := range local.subObjects {
			out[r] = struct{}{}
		}
	}
}
