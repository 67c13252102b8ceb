// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
)

// Update runs 'fn' on a fresh transaction of 'rid' and commits it, starting
// over with backoff whenever the commit loses a race. An error from 'fn'
// discards the transaction and is returned as is. Update gives up after
// the store's CommitRetry limits with ErrCommitConflict, or with ErrCanceled
// if 'ctx' is done.
func (s *Store) Update(ctx context.Context, rid core.RID, fn func(*Object) error) error {
	var err error
	ok, cancelled := s.cfg.CommitRetry.Do(ctx, func(attempt int) bool {
		if attempt > 0 {
			log.V(1).Infof("update of %s: attempt %d", rid, attempt)
		}
		var w *Object
		if w, err = s.Write(rid); err != nil {
			return true
		}
		if err = fn(w); err != nil {
			w.Discard()
			return true
		}
		err = w.Commit()
		return !core.IsRetriableError(err)
	})
	if cancelled {
		return fmt.Errorf("update %s: %w", rid, core.ErrCanceled.Error())
	}
	if !ok && err == nil {
		err = fmt.Errorf("update %s: %w", rid, core.ErrCommitConflict.Error())
	}
	return err
}

// Clone creates a copy of 'rid' with the same prototype. Values set on
// 'rid' itself are copied, owned children are cloned recursively, and
// generated stream buffers are duplicated. Mapped streams keep pointing at
// the same file.
func (s *Store) Clone(rid core.RID) (core.RID, error) {
	var made []core.RID
	out, err := s.clone(rid, &made, 0)
	if err != nil {
		for _, r := range made {
			s.DestroyResource(r)
		}
	}
	return out, err
}

func (s *Store) clone(rid core.RID, made *[]core.RID, depth int) (core.RID, error) {
	if depth == maxChainDepth {
		return core.NilRID, fmt.Errorf("clone %s: ownership too deep: %w", rid, core.ErrInvalidArgument.Error())
	}
	src, ok := s.ReadNoPrototypes(rid)
	if !ok {
		return core.NilRID, fmt.Errorf("clone %s: %w", rid, core.ErrNoSuchResource.Error())
	}

	nrid, nst, err := s.create(src.typ, src.proto, uuid.Nil)
	if err != nil {
		return core.NilRID, err
	}
	*made = append(*made, nrid)
	w := s.begin(nst, nrid)

	for i, set := range src.data.set {
		if !set {
			continue
		}
		v := src.data.values[i]
		switch src.typ.Field(i).Kind {
		case schema.FieldValue:
			w.SetValue(i, v)

		case schema.FieldSubObject:
			if child := v.(core.RID); s.ownedBy(child, rid) {
				c, err := s.clone(child, made, depth+1)
				if err != nil {
					w.Discard()
					return core.NilRID, err
				}
				w.SetSubObject(i, c)
			} else {
				w.SetSubObject(i, core.NilRID)
			}

		case schema.FieldSubObjectSet:
			set := v.(*subObjectSet)
			w.localSet(i)
			for child := range set.subObjects {
				if !s.ownedBy(child, rid) {
					continue
				}
				c, err := s.clone(child, made, depth+1)
				if err != nil {
					w.Discard()
					return core.NilRID, err
				}
				w.AddToSubObjectSet(i, c)
			}
			for hidden := range set.prototypeRemoved {
				w.RemoveFromPrototypeSubObjectSet(i, hidden)
			}

		case schema.FieldStream:
			if err := s.cloneStream(w, i, v.(stream.Ref)); err != nil {
				w.Discard()
				return core.NilRID, err
			}
		}
	}

	if err := w.Commit(); err != nil {
		return core.NilRID, err
	}
	log.V(2).Infof("cloned %s into %s", rid, nrid)
	return nrid, nil
}

func (s *Store) cloneStream(w *Object, i int, ref stream.Ref) error {
	if ref.Path != "" {
		w.MapStream(i, ref.Path)
		return nil
	}
	data, err := s.streams.Read(ref)
	if core.ErrNoSuchStream.Is(err) {
		// Never written; the copy gets its own empty buffer on first write.
		w.WriteStream(i)
		return nil
	}
	if err != nil {
		return err
	}
	return w.WriteStream(i).Set(data)
}

// ownedBy returns true if 'child' is alive and its parent is 'rid'.
func (s *Store) ownedBy(child, rid core.RID) bool {
	cs := s.live(child)
	if cs == nil {
		return false
	}
	parent, _ := cs.parentRID()
	return parent == rid
}
