// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/google/uuid"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/store"
)

var usage = `
	rgcli runs an in-process resource store and lets you poke at it.

	Issue one command:

		rgcli [--schema <types.json>] [(--setup <command>)...] <subcommand> [<flags>...]

	or start an interpreter:

		rgcli [--schema <types.json>] [(--setup <command>)...] shell

	Without --schema a small scene/node/mesh/material schema is loaded. Setup
	commands run before anything else, e.g.

		rgcli --setup "create --type Material --path mat/base" --setup "set mat/base Roughness 0.5" shell

	Resources can be named by handle (page:offset) or by a path bound with
	--path or "bind".
	`

// rgCli owns one store for the life of the process. Commands run against it
// one at a time.
type rgCli struct {
	// the command line framework we'll use to launch commands.
	app *cli.App
	// the store, created before the first command runs.
	store *store.Store
	// Stream directory we created and must remove, if any.
	scratchDir string
	// True if we are running a shell.
	inShell bool
}

// newRgCli creates a new rgCli object.
func newRgCli() *rgCli {
	b := &rgCli{}
	app := cli.NewApp()
	app.Name = "rgcli"

	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "schema",
			Usage: "JSON file with resource type definitions",
		},
		cli.StringFlag{
			Name:  "stream_dir",
			Usage: "Where stream buffers live (default: a scratch directory removed on exit)",
		},
		cli.StringFlag{
			Name:  "stream_backend",
			Usage: "Stream backend, file or bolt",
			Value: store.StreamBackendFile,
		},
		cli.BoolFlag{
			Name:  "compress",
			Usage: "Snappy-compress stream buffers",
		},
		cli.StringSliceFlag{
			Name:  "setup",
			Usage: "Commands to run before doing anything else",
		},
	}

	typeFlag := cli.StringFlag{
		Name:  "type, t",
		Usage: "resource type name",
	}
	uuidFlag := cli.StringFlag{
		Name:  "uuid, u",
		Usage: "external id to bind (create returns the bound resource if it exists)",
	}
	pathFlag := cli.StringFlag{
		Name:  "path, p",
		Usage: "path to bind",
	}
	localFlag := cli.BoolFlag{
		Name:  "local, l",
		Usage: "only show what the resource sets itself",
	}
	fileFlag := cli.StringFlag{
		Name:  "file, f",
		Usage: "file to read or write data from (output defaults to stdout)",
	}

	app.Commands = []cli.Command{
		{
			Name:   "types",
			Usage:  "Lists registered resource types and their fields.",
			Action: b.cmdTypes,
		},
		{
			Name:    "create",
			Aliases: []string{"c"},
			Usage:   "Creates a resource.",
			Flags:   []cli.Flag{typeFlag, uuidFlag, pathFlag},
			Action:  b.cmdCreate,
		},
		{
			Name:      "derive",
			Aliases:   []string{"proto"},
			Usage:     "Creates a resource that inherits from a prototype.",
			ArgsUsage: "<prototype>",
			Flags:     []cli.Flag{uuidFlag, pathFlag},
			Action:    b.cmdDerive,
		},
		{
			Name:      "set",
			Usage:     "Sets value fields, as pairs of field name and value.",
			ArgsUsage: "<resource> <field> <value> [<field> <value>...]",
			Action:    b.cmdSet,
		},
		{
			Name:      "reset",
			Usage:     "Drops local values so they inherit from the prototype again.",
			ArgsUsage: "<resource> <field>...",
			Action:    b.cmdReset,
		},
		{
			Name:      "get",
			Aliases:   []string{"g"},
			Usage:     "Prints a resource.",
			ArgsUsage: "<resource>",
			Flags:     []cli.Flag{localFlag},
			Action:    b.cmdGet,
		},
		{
			Name:      "own",
			Usage:     "Puts a child in a sub-object field, or adds it to a sub-object set field.",
			ArgsUsage: "<resource> <field> <child>",
			Action:    b.cmdOwn,
		},
		{
			Name:      "disown",
			Usage:     "Releases a child from a sub-object or sub-object set field.",
			ArgsUsage: "<resource> <field> <child>",
			Action:    b.cmdDisown,
		},
		{
			Name:      "hide",
			Aliases:   []string{"tomb"},
			Usage:     "Hides a member inherited from the prototype's set.",
			ArgsUsage: "<resource> <field> <child>",
			Action:    b.cmdHide,
		},
		{
			Name:      "unhide",
			Aliases:   []string{"untomb"},
			Usage:     "Undoes hide.",
			ArgsUsage: "<resource> <field> <child>",
			Action:    b.cmdUnhide,
		},
		{
			Name:   "ls",
			Usage:  "Lists resources.",
			Flags:  []cli.Flag{typeFlag},
			Action: b.cmdList,
		},
		{
			Name:      "destroy",
			Aliases:   []string{"rm"},
			Usage:     "Destroys resources and everything they own. Takes effect on gc.",
			ArgsUsage: "<resource>...",
			Action:    b.cmdDestroy,
		},
		{
			Name:   "gc",
			Usage:  "Runs the garbage collector.",
			Action: b.cmdGC,
		},
		{
			Name:      "clone",
			Usage:     "Deep copies a resource.",
			ArgsUsage: "<resource>",
			Flags:     []cli.Flag{pathFlag},
			Action:    b.cmdClone,
		},
		{
			Name:      "bind",
			Usage:     "Binds an external id and/or a path to a resource.",
			ArgsUsage: "<resource>",
			Flags:     []cli.Flag{uuidFlag, pathFlag},
			Action:    b.cmdBind,
		},
		{
			Name:      "unbind",
			Usage:     "Removes a path binding.",
			ArgsUsage: "<path>",
			Action:    b.cmdUnbind,
		},
		{
			Name:  "stream",
			Usage: "Reads and writes stream fields.",
			Subcommands: []cli.Command{
				{
					Name:      "put",
					Usage:     "Replaces the payload of a stream field with the content of a file.",
					ArgsUsage: "<resource> <field>",
					Flags:     []cli.Flag{fileFlag},
					Action:    b.cmdStreamPut,
				},
				{
					Name:      "get",
					Usage:     "Prints the payload of a stream field.",
					ArgsUsage: "<resource> <field>",
					Flags:     []cli.Flag{fileFlag},
					Action:    b.cmdStreamGet,
				},
				{
					Name:      "map",
					Usage:     "Points a stream field at an existing file.",
					ArgsUsage: "<resource> <field> <file>",
					Action:    b.cmdStreamMap,
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "Prints store counters.",
			Action: b.cmdStats,
		},
		{
			Name:   "shell",
			Usage:  "Starts a shell for interaction.",
			Action: b.cmdShell,
		},
	}
	app.Before = b.beforeSubcommandRun
	b.app = app

	// By default 'HelpName' will be the parent command name('rgcli' in our
	// case) + command name. Overwrite 'HelpName' to be command name only.
	for i := range b.app.Commands {
		b.app.Commands[i].HelpName = b.app.Commands[i].Name
	}
	return b
}

// run starts a command specified by users.
func (b *rgCli) run(args []string) error {
	return b.app.Run(args)
}

// stop closes the store and removes the scratch directory.
func (b *rgCli) stop() {
	if b.store != nil {
		if err := b.store.Close(); err != nil && !core.ErrClosed.Is(err) {
			log.Errorf("failed to close store: %s", err)
		}
	}
	if b.scratchDir != "" {
		os.RemoveAll(b.scratchDir)
		b.scratchDir = ""
	}
}

// openStore creates the store from the global flags.
func (b *rgCli) openStore(c *cli.Context) error {
	reg := schema.NewRegistry(schema.NewTypeTable())
	var src io.Reader = strings.NewReader(demoTypes)
	if name := c.GlobalString("schema"); name != "" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	if _, err := schema.LoadTypes(src, reg); err != nil {
		return err
	}

	cfg := store.DefaultConfig
	cfg.StreamBackend = c.GlobalString("stream_backend")
	cfg.CompressStreams = c.GlobalBool("compress")
	if cfg.StreamDir = c.GlobalString("stream_dir"); cfg.StreamDir == "" {
		dir, err := ioutil.TempDir("", "rgcli")
		if err != nil {
			return err
		}
		b.scratchDir, cfg.StreamDir = dir, dir
	}

	s, err := store.New(reg, cfg)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

// This function will be called before any subcommand gets started so some setup
// can be done here.
func (b *rgCli) beforeSubcommandRun(c *cli.Context) error {
	if b.store != nil {
		return nil
	}
	if err := b.openStore(c); err != nil {
		log.Errorf("failed to open store: %s", err)
		return err
	}

	// See if users have some setup commands to run before any subcommand starts.
	commands := c.GlobalStringSlice("setup")
	if len(commands) != 0 {
		log.Infof("Running setup commands...")
		for _, command := range commands {
			log.Infof("Running command %q", command)
			args, err := shlex.Split(command)
			if err != nil {
				return err
			}
			if err := b.runCommand(args...); err != nil {
				log.Errorf("error: %v", err)
				return err
			}
		}
		log.Infof("Setup is done!")
	}
	return nil
}

// runCommand runs a command after the cli gets started already(either from
// command interpreter or setup flags).
func (b *rgCli) runCommand(args ...string) error {
	return b.run(append([]string{"rgcli"}, args...))
}

//-----------------
// Argument helpers
//-----------------

// resource resolves a handle or a bound path.
func (b *rgCli) resource(arg string) (core.RID, error) {
	if rid, err := core.ParseRID(arg); err == nil {
		return rid, nil
	}
	if rid, ok := b.store.GetByPath(arg); ok {
		return rid, nil
	}
	return core.NilRID, fmt.Errorf("%q is neither a handle nor a bound path", arg)
}

// field resolves a field name of the type of 'rid'.
func (b *rgCli) field(rid core.RID, name string) (*schema.ResourceType, int, error) {
	typ, ok := b.store.TypeOf(rid)
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", rid, core.ErrNoSuchResource.Error())
	}
	i, ok := typ.FieldByName(name)
	if !ok {
		return nil, 0, fmt.Errorf("%s has no field %q", typ.Name(), name)
	}
	return typ, i, nil
}

// args checks that the command got at least 'n' arguments.
func args(c *cli.Context, n int) ([]string, bool) {
	a := c.Args()
	if len(a) < n {
		log.Errorf("%s needs %d arguments: %s", c.Command.Name, n, c.Command.ArgsUsage)
		return nil, false
	}
	return a, true
}

// update runs 'fn' on resource 'arg' and commits.
func (b *rgCli) update(arg string, fn func(rid core.RID, w *store.Object) error) {
	rid, err := b.resource(arg)
	if err == nil {
		err = b.store.Update(context.Background(), rid, func(w *store.Object) error {
			return fn(rid, w)
		})
	}
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	log.Infof("%s is at version %d", rid, b.store.Version(rid))
}

// bindNames applies --uuid and --path to 'rid'.
func (b *rgCli) bindNames(c *cli.Context, rid core.RID) {
	if s := c.String("uuid"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			log.Errorf("bad uuid %q: %s", s, err)
		} else if err := b.store.SetUUID(rid, id); err != nil {
			log.Errorf("%s", err)
		}
	}
	if p := c.String("path"); p != "" {
		if err := b.store.SetPath(rid, p); err != nil {
			log.Errorf("%s", err)
		}
	}
}
