// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package load

import (
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	sigar "github.com/cloudfoundry/gosigar"
	"github.com/google/uuid"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/store"
)

// Fields of the node type.
const (
	fCount = iota
	fLabel
	fLeaf
	fPayload
)

// Fields of the root and leaf types.
const (
	fNodes  = 0
	fSerial = 0
)

const templateLabel = "template"

var (
	rootTypeID = core.TypeIDFromName("LoadRoot")
	nodeTypeID = core.TypeIDFromName("LoadNode")
	leafTypeID = core.TypeIDFromName("LoadLeaf")
)

// Runner drives concurrent writers and readers against one store. Every node
// derives its label from a shared template, owns one leaf, and counts the
// updates it received. Writers bump counters and churn leaves, readers walk
// the tree under a pin and check what they see.
type Runner struct {
	cfg     Config
	s       *store.Store
	tempDir string

	template core.RID
	root     core.RID
	nodes    []core.RID

	pick    Variate
	payload Variate

	writeStat *opStats
	readStat  *opStats

	commits   int64 // Successful updates.
	conflicts int64 // Commits that lost a race and were rebuilt.
	gaveUp    int64 // Updates that ran out of retries.
	destroyed int64 // Leaves replaced and destroyed.
	gcJobs    int64 // Jobs processed by the periodic collector.
}

// Report is the outcome of a run.
type Report struct {
	Commits   int64
	Conflicts int64
	GaveUp    int64
	Destroyed int64
	GCJobs    int64 // Including the final drain.
	Reads     int64

	// Resident set size of the process before and after the final drain.
	ResidentBefore, ResidentAfter uint64
	// Memory the OS considers available, after the final drain.
	ActualFree uint64

	write, read string
}

func (r Report) String() string {
	str := fmt.Sprintf("commits: %d, conflicts: %d, gave up: %d, leaves destroyed: %d, gc jobs: %d\n",
		r.Commits, r.Conflicts, r.GaveUp, r.Destroyed, r.GCJobs)
	str += fmt.Sprintf("resident: %.1f MB before final gc, %.1f MB after; system free: %.1f MB\n",
		float64(r.ResidentBefore)/MB, float64(r.ResidentAfter)/MB, float64(r.ActualFree)/MB)
	str += fmt.Sprintf("  Write stats:\n%s  Read stats:\n%s", r.write, r.read)
	return str
}

// NewRunner validates 'cfg' and creates the store and the resource tree.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg}
	r.pick, _ = cfg.Pick.Parse()
	r.payload, _ = cfg.PayloadSize.Parse()

	reg := schema.NewRegistry(schema.NewTypeTable())
	if _, err := schema.NewBuilder("LoadRoot", rootTypeID).SubObjectSet("Nodes").Build(reg); err != nil {
		return nil, err
	}
	if _, err := schema.NewBuilder("LoadNode", nodeTypeID).
		Value("Count", "int64").
		Value("Label", "string").
		SubObject("Leaf").
		Stream("Payload").
		Build(reg); err != nil {
		return nil, err
	}
	if _, err := schema.NewBuilder("LoadLeaf", leafTypeID).Value("Serial", "int64").Build(reg); err != nil {
		return nil, err
	}

	scfg := store.DefaultConfig
	scfg.StreamBackend = cfg.StreamBackend
	scfg.CompressStreams = cfg.CompressStreams
	if scfg.StreamDir = cfg.StreamDir; scfg.StreamDir == "" {
		dir, err := ioutil.TempDir("", "rgload")
		if err != nil {
			return nil, err
		}
		r.tempDir, scfg.StreamDir = dir, dir
	}
	s, err := store.New(reg, scfg)
	if err != nil {
		r.cleanup()
		return nil, err
	}
	r.s = s

	if err := r.populate(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Store returns the store under load.
func (r *Runner) Store() *store.Store {
	return r.s
}

// populate builds the template, the root, and the nodes.
func (r *Runner) populate() error {
	var err error
	if r.template, err = r.create(nodeTypeID, func(w *store.Object) {
		w.SetValue(fLabel, templateLabel)
		w.SetValue(fCount, int64(0))
	}); err != nil {
		return err
	}
	if r.root, err = r.create(rootTypeID, nil); err != nil {
		return err
	}

	r.nodes = make([]core.RID, r.cfg.Nodes)
	for i := range r.nodes {
		leaf, err := r.newLeaf(0)
		if err != nil {
			return err
		}
		node, err := r.s.CreateFromPrototype(r.template, uuid.Nil)
		if err != nil {
			return err
		}
		if err := r.s.Update(context.Background(), node, func(w *store.Object) error {
			w.SetSubObject(fLeaf, leaf)
			return nil
		}); err != nil {
			return err
		}
		r.nodes[i] = node
	}

	return r.s.Update(context.Background(), r.root, func(w *store.Object) error {
		for _, node := range r.nodes {
			w.AddToSubObjectSet(fNodes, node)
		}
		return nil
	})
}

// create creates and publishes a resource of type 'typeID'.
func (r *Runner) create(typeID core.TypeID, fn func(w *store.Object)) (core.RID, error) {
	rid, err := r.s.CreateResource(typeID, uuid.Nil)
	if err != nil {
		return core.NilRID, err
	}
	return rid, r.s.Update(context.Background(), rid, func(w *store.Object) error {
		if fn != nil {
			fn(w)
		}
		return nil
	})
}

func (r *Runner) newLeaf(serial int64) (core.RID, error) {
	return r.create(leafTypeID, func(w *store.Object) {
		w.SetValue(fSerial, serial)
	})
}

// Run injects load for the configured duration, drains the collector, and
// checks that every successful update is accounted for.
func (r *Runner) Run() (Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.duration)
	defer cancel()

	r.writeStat, r.readStat = newOpStats(), newOpStats()

	var errOnce sync.Once
	var runErr error
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	log.Infof("starting %d writers and %d readers over %d nodes for %s",
		r.cfg.Writers, r.cfg.Readers, r.cfg.Nodes, r.cfg.duration)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := r.writer(ctx, id); err != nil {
				fail(fmt.Errorf("writer #%d: %s", id, err))
			}
		}(i)
	}
	for i := 0; i < r.cfg.Readers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := r.reader(ctx); err != nil {
				fail(fmt.Errorf("reader #%d: %s", id, err))
			}
		}(i)
	}

	gcDone := make(chan struct{})
	go r.collect(ctx, gcDone)

	wg.Wait()
	cancel()
	<-gcDone

	rep := Report{ResidentBefore: resident()}
	rep.GCJobs = atomic.LoadInt64(&r.gcJobs) + r.drain()
	runtime.GC()
	rep.ResidentAfter = resident()
	mem := sigar.Mem{}
	if err := mem.Get(); err == nil {
		rep.ActualFree = mem.ActualFree
	}

	rep.Commits = atomic.LoadInt64(&r.commits)
	rep.Conflicts = atomic.LoadInt64(&r.conflicts)
	rep.GaveUp = atomic.LoadInt64(&r.gaveUp)
	rep.Destroyed = atomic.LoadInt64(&r.destroyed)
	rep.Reads = r.readStat.Count()
	rep.write, rep.read = r.writeStat.String(), r.readStat.String()

	if runErr != nil {
		return rep, runErr
	}
	return rep, r.verify(rep)
}

// writer updates nodes picked by the Pick variate until 'ctx' is done.
func (r *Runner) writer(ctx context.Context, id int) error {
	var buf []byte
	for n := 1; ctx.Err() == nil; n++ {
		node := r.nodes[r.index()]
		size := int(math.Max(r.payload.Sample(), 0))
		if size > len(buf) {
			buf = make([]byte, size)
			for i := range buf {
				buf[i] = byte(id)
			}
		}

		var leaf, old core.RID
		if r.cfg.DestroyEvery > 0 && n%r.cfg.DestroyEvery == 0 {
			var err error
			if leaf, err = r.newLeaf(int64(n)); err != nil {
				return err
			}
		}

		start := time.Now()
		attempts := 0
		err := r.s.Update(ctx, node, func(w *store.Object) error {
			if attempts++; attempts > 1 {
				atomic.AddInt64(&r.conflicts, 1)
			}
			count, _ := store.Get[int64](w, fCount)
			w.SetValue(fCount, count+1)
			if leaf.IsValid() {
				old = w.SubObject(fLeaf)
				w.SetSubObject(fLeaf, leaf)
			}
			if size > 0 {
				return w.WriteStream(fPayload).Set(buf[:size])
			}
			return nil
		})

		switch {
		case err == nil:
			atomic.AddInt64(&r.commits, 1)
			r.writeStat.update(int64(size), time.Since(start))
			if old.IsValid() {
				if err := r.s.DestroyResource(old); err != nil {
					return fmt.Errorf("destroying replaced leaf %s: %s", old, err)
				}
				atomic.AddInt64(&r.destroyed, 1)
			}
			continue
		case core.ErrCommitConflict.Is(err):
			atomic.AddInt64(&r.gaveUp, 1)
		case core.ErrCanceled.Is(err):
		default:
			return err
		}
		// The new leaf never got an owner.
		if leaf.IsValid() {
			r.s.DestroyResource(leaf)
		}
	}
	return nil
}

// index picks a node.
func (r *Runner) index() int {
	v := math.Abs(r.pick.Sample())
	if math.IsInf(v, 0) || math.IsNaN(v) || v >= math.MaxInt32 {
		return 0
	}
	return int(v) % len(r.nodes)
}

// reader walks the tree under a pin until 'ctx' is done. Counters must never
// go backwards and every node must still inherit the template's label.
func (r *Runner) reader(ctx context.Context) error {
	last := make(map[core.RID]int64, len(r.nodes))
	for ctx.Err() == nil {
		start := time.Now()
		if err := r.walk(last); err != nil {
			return err
		}
		r.readStat.update(0, time.Since(start))
	}
	return nil
}

func (r *Runner) walk(last map[core.RID]int64) error {
	pin := r.s.Pin()
	defer pin.Release()

	root, ok := r.s.Read(r.root)
	if !ok {
		return fmt.Errorf("root %s is gone", r.root)
	}
	nodes := root.SubObjectSet(fNodes)
	if len(nodes) != len(r.nodes) {
		return fmt.Errorf("root has %d nodes, want %d", len(nodes), len(r.nodes))
	}
	for _, rid := range nodes {
		o, ok := r.s.Read(rid)
		if !ok {
			return fmt.Errorf("node %s is gone", rid)
		}
		if label, _ := store.Get[string](o, fLabel); label != templateLabel {
			return fmt.Errorf("node %s has label %q", rid, label)
		}
		count, _ := store.Get[int64](o, fCount)
		if count < last[rid] {
			return fmt.Errorf("node %s went from %d to %d", rid, last[rid], count)
		}
		last[rid] = count
		if leaf := o.SubObject(fLeaf); !leaf.IsValid() {
			return fmt.Errorf("node %s has no leaf", rid)
		}
	}
	return nil
}

// collect pumps the collector every GCInterval until 'ctx' is done.
func (r *Runner) collect(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			atomic.AddInt64(&r.gcJobs, int64(r.s.GarbageCollect()))
		}
	}
}

// drain pumps the collector until nothing is pending. With no readers left
// two pumps are enough: destroy jobs retire final snapshots, which the next
// pump reclaims.
func (r *Runner) drain() (n int64) {
	for i := 0; i < 8 && r.s.PendingGC() > 0; i++ {
		n += int64(r.s.GarbageCollect())
	}
	if p := r.s.PendingGC(); p > 0 {
		log.Warningf("%d gc jobs still pending after drain", p)
	}
	return n
}

// verify checks that the counters add up to the number of successful updates
// and that replaced leaves are really gone.
func (r *Runner) verify(rep Report) error {
	var sum int64
	for _, rid := range r.nodes {
		o, ok := r.s.Read(rid)
		if !ok {
			return fmt.Errorf("node %s is gone", rid)
		}
		count, _ := store.Get[int64](o, fCount)
		sum += count
	}
	if sum != rep.Commits {
		return fmt.Errorf("node counters add up to %d, but %d updates succeeded", sum, rep.Commits)
	}
	if live, want := len(r.s.ResourcesByType(leafTypeID)), len(r.nodes); live != want {
		return fmt.Errorf("%d leaves alive after gc, want %d", live, want)
	}
	if r.s.PendingGC() != 0 {
		return fmt.Errorf("%d gc jobs still pending", r.s.PendingGC())
	}
	return nil
}

// Close closes the store and removes the scratch directory, if any.
func (r *Runner) Close() error {
	var err error
	if r.s != nil {
		err = r.s.Close()
	}
	r.cleanup()
	return err
}

func (r *Runner) cleanup() {
	if r.tempDir != "" {
		os.RemoveAll(r.tempDir)
		r.tempDir = ""
	}
}

// resident returns the resident set size of this process, or 0 if the
// platform can't tell.
func resident() uint64 {
	mem := sigar.ProcMem{}
	if err := mem.Get(os.Getpid()); err != nil {
		log.V(1).Infof("failed to get process memory: %s", err)
		return 0
	}
	return mem.Resident
}
