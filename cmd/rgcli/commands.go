// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/codegangsta/cli"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	shlex "github.com/flynn-archive/go-shlex"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/store"
)

// cmdTypes implements the "types" subcommand.
func (b *rgCli) cmdTypes(c *cli.Context) {
	for _, typ := range b.store.Registry().Types() {
		log.Infof("%s, %d bytes", typ, typ.Size())
		for _, f := range typ.Fields() {
			vt := ""
			if f.Value != nil {
				vt = f.Value.Name()
			}
			log.Infof("    %2d %-16s %-12s %-8s @%d", f.Index, f.Name, f.Kind, vt, f.Offset)
		}
	}
}

// cmdCreate implements the "create" subcommand.
func (b *rgCli) cmdCreate(c *cli.Context) {
	typ, ok := b.store.Registry().GetByName(c.String("type"))
	if !ok {
		log.Errorf("Unknown type %q, see 'types'", c.String("type"))
		return
	}
	id := uuid.Nil
	if s := c.String("uuid"); s != "" {
		var err error
		if id, err = uuid.Parse(s); err != nil {
			log.Errorf("bad uuid %q: %s", s, err)
			return
		}
	}
	rid, err := b.store.CreateResource(typ.ID(), id)
	if err != nil {
		log.Errorf("Couldn't create resource: %s", err)
		return
	}
	// Publish an empty first snapshot so the resource is readable right away.
	if _, ok := b.store.Read(rid); !ok {
		w, err := b.store.Write(rid)
		if err == nil {
			err = w.Commit()
		}
		if err != nil {
			log.Errorf("Couldn't publish %s: %s", rid, err)
			return
		}
	}
	if p := c.String("path"); p != "" {
		if err := b.store.SetPath(rid, p); err != nil {
			log.Errorf("%s", err)
		}
	}
	log.Infof("New %s: %s", typ.Name(), rid)
}

// cmdDerive implements the "derive" subcommand.
func (b *rgCli) cmdDerive(c *cli.Context) {
	a, ok := args(c, 1)
	if !ok {
		return
	}
	proto, err := b.resource(a[0])
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	rid, err := b.store.CreateFromPrototype(proto, uuid.Nil)
	if err != nil {
		log.Errorf("Couldn't derive from %s: %s", proto, err)
		return
	}
	b.bindNames(c, rid)
	log.Infof("New resource %s with prototype %s", rid, proto)
}

// cmdSet implements the "set" subcommand.
func (b *rgCli) cmdSet(c *cli.Context) {
	a, ok := args(c, 3)
	if !ok {
		return
	}
	if len(a)%2 != 1 {
		log.Errorf("fields and values must come in pairs")
		return
	}
	b.update(a[0], func(rid core.RID, w *store.Object) error {
		for i := 1; i < len(a); i += 2 {
			typ, field, err := b.field(rid, a[i])
			if err != nil {
				return err
			}
			f := typ.Field(field)
			if f.Kind != schema.FieldValue {
				return fmt.Errorf("%s is a %s field", f.Name, f.Kind)
			}
			v, err := schema.ParseValue(f.Value, a[i+1])
			if err != nil {
				return err
			}
			w.SetValue(field, v)
		}
		return nil
	})
}

// cmdReset implements the "reset" subcommand.
func (b *rgCli) cmdReset(c *cli.Context) {
	a, ok := args(c, 2)
	if !ok {
		return
	}
	b.update(a[0], func(rid core.RID, w *store.Object) error {
		for _, name := range a[1:] {
			typ, field, err := b.field(rid, name)
			if err != nil {
				return err
			}
			if typ.Field(field).Kind != schema.FieldValue {
				return fmt.Errorf("only value fields can be reset")
			}
			w.ResetValue(field)
		}
		return nil
	})
}

// cmdGet implements the "get" subcommand.
func (b *rgCli) cmdGet(c *cli.Context) {
	a, ok := args(c, 1)
	if !ok {
		return
	}
	rid, err := b.resource(a[0])
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	read := b.store.Read
	if c.Bool("local") {
		read = b.store.ReadNoPrototypes
	}
	o, ok := read(rid)
	if !ok {
		log.Errorf("%s: nothing committed", rid)
		return
	}

	header := fmt.Sprintf("%s %s version=%d", o.Type().Name(), rid, o.Version())
	if p := o.Prototype(); p.IsValid() {
		header += fmt.Sprintf(" prototype=%s", p)
	}
	if p, f := b.store.Parent(rid); p.IsValid() {
		header += fmt.Sprintf(" parent=%s.%s", p, o.Type().Field(f).Name)
	}
	if id, ok := b.store.UUIDOf(rid); ok {
		header += fmt.Sprintf(" uuid=%s", id)
	}
	if path, ok := b.store.PathOf(rid); ok {
		header += fmt.Sprintf(" path=%s", path)
	}
	log.Infof("%s", header)

	for _, f := range o.Type().Fields() {
		var val string
		switch f.Kind {
		case schema.FieldValue:
			if v, ok := o.Value(f.Index); ok {
				val = schema.FormatValue(v)
			}
		case schema.FieldSubObject:
			if r := o.SubObject(f.Index); r.IsValid() {
				val = r.String()
			}
		case schema.FieldSubObjectSet:
			val = fmt.Sprintf("%v", o.SubObjectSet(f.Index))
			if hidden := o.PrototypeRemoved(f.Index); len(hidden) > 0 {
				val += fmt.Sprintf(" hiding %v", hidden)
			}
		case schema.FieldStream:
			if st, ok := o.Stream(f.Index); ok {
				n, _ := st.Size()
				val = fmt.Sprintf("%s (%d bytes)", st.Ref(), n)
			}
		}
		marker := " "
		if o.HasLocal(f.Index) {
			marker = "*"
		}
		log.Infof("  %s %-16s %s", marker, f.Name, val)
	}
}

// ownership runs 'fn' on the field and child named by "<resource> <field> <child>".
func (b *rgCli) ownership(c *cli.Context, fn func(w *store.Object, kind schema.FieldKind, field int, child core.RID) error) {
	a, ok := args(c, 3)
	if !ok {
		return
	}
	child, err := b.resource(a[2])
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	b.update(a[0], func(rid core.RID, w *store.Object) error {
		typ, field, err := b.field(rid, a[1])
		if err != nil {
			return err
		}
		return fn(w, typ.Field(field).Kind, field, child)
	})
}

// cmdOwn implements the "own" subcommand.
func (b *rgCli) cmdOwn(c *cli.Context) {
	b.ownership(c, func(w *store.Object, kind schema.FieldKind, field int, child core.RID) error {
		switch kind {
		case schema.FieldSubObject:
			w.SetSubObject(field, child)
		case schema.FieldSubObjectSet:
			w.AddToSubObjectSet(field, child)
		default:
			return fmt.Errorf("can't own through a %s field", kind)
		}
		return nil
	})
}

// cmdDisown implements the "disown" subcommand.
func (b *rgCli) cmdDisown(c *cli.Context) {
	b.ownership(c, func(w *store.Object, kind schema.FieldKind, field int, child core.RID) error {
		switch kind {
		case schema.FieldSubObject:
			if w.SubObject(field) != child {
				return fmt.Errorf("%s doesn't hold %s", w.Type().Field(field).Name, child)
			}
			w.SetSubObject(field, core.NilRID)
		case schema.FieldSubObjectSet:
			w.RemoveFromSubObjectSet(field, child)
		default:
			return fmt.Errorf("can't disown through a %s field", kind)
		}
		return nil
	})
}

// cmdHide implements the "hide" subcommand.
func (b *rgCli) cmdHide(c *cli.Context) {
	b.ownership(c, func(w *store.Object, kind schema.FieldKind, field int, child core.RID) error {
		if kind != schema.FieldSubObjectSet {
			return fmt.Errorf("only set members can be hidden")
		}
		w.RemoveFromPrototypeSubObjectSet(field, child)
		return nil
	})
}

// cmdUnhide implements the "unhide" subcommand.
func (b *rgCli) cmdUnhide(c *cli.Context) {
	b.ownership(c, func(w *store.Object, kind schema.FieldKind, field int, child core.RID) error {
		if kind != schema.FieldSubObjectSet {
			return fmt.Errorf("only set members can be hidden")
		}
		w.CancelRemoveFromPrototypeSubObjectSet(field, child)
		return nil
	})
}

// cmdList implements the "ls" subcommand.
func (b *rgCli) cmdList(c *cli.Context) {
	types := b.store.Registry().Types()
	if name := c.String("type"); name != "" {
		typ, ok := b.store.Registry().GetByName(name)
		if !ok {
			log.Errorf("Unknown type %q", name)
			return
		}
		types = []*schema.ResourceType{typ}
	}
	for _, typ := range types {
		for _, rid := range b.store.ResourcesByType(typ.ID()) {
			line := fmt.Sprintf("%-10s %-10s v%d", rid, typ.Name(), b.store.Version(rid))
			if path, ok := b.store.PathOf(rid); ok {
				line += " " + path
			}
			if !b.store.IsAlive(rid) {
				line += " (destroyed, awaiting gc)"
			}
			log.Infof("%s", line)
		}
	}
}

// cmdDestroy implements the "destroy" subcommand.
func (b *rgCli) cmdDestroy(c *cli.Context) {
	for _, arg := range c.Args() {
		rid, err := b.resource(arg)
		if err == nil {
			err = b.store.DestroyResource(rid)
		}
		if err != nil {
			log.Errorf("%s", err)
			continue
		}
		log.Infof("%s will be destroyed on the next gc", rid)
	}
}

// cmdGC implements the "gc" subcommand.
func (b *rgCli) cmdGC(c *cli.Context) {
	n := b.store.GarbageCollect()
	log.Infof("gc processed %d jobs, %d still pending", n, b.store.PendingGC())
}

// cmdClone implements the "clone" subcommand.
func (b *rgCli) cmdClone(c *cli.Context) {
	a, ok := args(c, 1)
	if !ok {
		return
	}
	src, err := b.resource(a[0])
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	rid, err := b.store.Clone(src)
	if err != nil {
		log.Errorf("Couldn't clone %s: %s", src, err)
		return
	}
	b.bindNames(c, rid)
	log.Infof("Cloned %s into %s", src, rid)
}

// cmdBind implements the "bind" subcommand.
func (b *rgCli) cmdBind(c *cli.Context) {
	a, ok := args(c, 1)
	if !ok {
		return
	}
	rid, err := b.resource(a[0])
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	b.bindNames(c, rid)
}

// cmdUnbind implements the "unbind" subcommand.
func (b *rgCli) cmdUnbind(c *cli.Context) {
	a, ok := args(c, 1)
	if !ok {
		return
	}
	if !b.store.RemovePath(a[0]) {
		log.Errorf("%q is not bound", a[0])
	}
}

// stream resolves "<resource> <field>" to a stream field.
func (b *rgCli) stream(a []string) (core.RID, int, error) {
	rid, err := b.resource(a[0])
	if err != nil {
		return core.NilRID, 0, err
	}
	typ, field, err := b.field(rid, a[1])
	if err != nil {
		return core.NilRID, 0, err
	}
	if kind := typ.Field(field).Kind; kind != schema.FieldStream {
		return core.NilRID, 0, fmt.Errorf("%s is a %s field", a[1], kind)
	}
	return rid, field, nil
}

// cmdStreamPut implements the "stream put" subcommand.
func (b *rgCli) cmdStreamPut(c *cli.Context) {
	a, ok := args(c, 2)
	if !ok {
		return
	}
	filename := c.String("file")
	if filename == "" {
		log.Errorf("Input file required.")
		return
	}
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		log.Errorf("Couldn't open input file: %v", err)
		return
	}
	if _, _, err := b.stream(a); err != nil {
		log.Errorf("%s", err)
		return
	}
	b.update(a[0], func(rid core.RID, w *store.Object) error {
		_, field, _ := b.field(rid, a[1])
		return w.WriteStream(field).Set(data)
	})
}

// cmdStreamGet implements the "stream get" subcommand.
func (b *rgCli) cmdStreamGet(c *cli.Context) {
	a, ok := args(c, 2)
	if !ok {
		return
	}
	rid, field, err := b.stream(a)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	o, ok := b.store.Read(rid)
	if !ok {
		log.Errorf("%s: nothing committed", rid)
		return
	}
	st, ok := o.Stream(field)
	if !ok {
		log.Errorf("%s.%s is not set", rid, a[1])
		return
	}
	data, err := st.Get()
	if err != nil {
		log.Errorf("Read error: %v", err)
		return
	}

	output := os.Stdout
	if filename := c.String("file"); filename != "" {
		if output, err = os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644); err != nil {
			log.Errorf("Couldn't open output file: %v", err)
			return
		}
		defer output.Close()
	}
	output.Write(data)
}

// cmdStreamMap implements the "stream map" subcommand.
func (b *rgCli) cmdStreamMap(c *cli.Context) {
	a, ok := args(c, 3)
	if !ok {
		return
	}
	if _, _, err := b.stream(a); err != nil {
		log.Errorf("%s", err)
		return
	}
	b.update(a[0], func(rid core.RID, w *store.Object) error {
		_, field, _ := b.field(rid, a[1])
		w.MapStream(field, a[2])
		return nil
	})
}

// cmdStats implements the "stats" subcommand.
func (b *rgCli) cmdStats(c *cli.Context) {
	log.Infof("resources: %d live, %d handles allocated, %d gc jobs pending",
		b.store.Count(), b.store.Allocated(), b.store.PendingGC())
	for _, op := range []string{"write", "commit", "gc"} {
		log.Infof("%-6s %s", op, store.OpSummary(op))
	}
}

// cmdShell implements the "shell" subcommand.
func (b *rgCli) cmdShell(c *cli.Context) {
	if b.inShell {
		log.Errorf("Already in a shell")
		return
	}
	b.inShell = true
	defer func() { b.inShell = false }()

	// Make cli not exit on errors.
	cli.OsExiter = func(int) {}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	// Complete command names at the start of the line.
	line.SetCompleter(func(input string) (c []string) {
		for _, cmd := range b.app.Commands {
			if strings.HasPrefix(cmd.Name, input) {
				c = append(c, cmd.Name)
			}
		}
		return
	})

	defer line.Close()

	for {
		input, err := line.Prompt("(resgraph) ")
		if err != nil {
			if err != liner.ErrPromptAborted && err.Error() != "EOF" {
				log.Errorf("error: %v", err)
			}
			return
		}

		// We use 'shlex' because we want split input line in to tokens using
		// shell-style rules for quoting and commenting.
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error:%v", err)
			continue
		}

		// Skip empty line.
		if 0 == len(args) {
			continue
		}

		if args[0] == "exit" || args[0] == "quit" {
			return
		}

		if b.runCommand(args...) == nil {
			// Adds succeeded command to command history.
			line.AppendHistory(input)
		}
	}
}
