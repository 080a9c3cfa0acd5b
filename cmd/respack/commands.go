package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/respack/internal/cli"
	"github.com/keithlinneman/respack/internal/manifest"
	"github.com/keithlinneman/respack/internal/version"
	"github.com/keithlinneman/respack/internal/xerrors"
	"github.com/keithlinneman/respack/resource"
)

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "respack",
		Summary: "Bundle files and values into a single pack file.",
		Output:  a.stderr,
		Subcommands: []*cli.Command{
			a.buildCmd(),
			a.listCmd(),
			a.getCmd(),
			a.extractCmd(),
			a.exportCmd(),
			a.pushCmd(),
			a.pullCmd(),
			a.publishCmd(),
			a.currentCmd(),
			a.serveCmd(),
			a.versionCmd(),
		},
	}
}

func (a *app) buildCmd() *cli.Command {
	var (
		manifestPath string
		output       string
		noExport     bool
		noExtract    bool
	)
	const usage = "respack build -m MANIFEST [-o OUT]"
	return &cli.Command{
		Name:    "build",
		Summary: "Build a pack from a YAML manifest",
		Usage:   usage,
		Examples: []cli.Example{
			{Description: "build, then export and extract as the manifest says", Command: "respack build -m respack.yaml"},
		},
		Flags: a.flagSet("build", func(fs *pflag.FlagSet) {
			fs.StringVarP(&manifestPath, "manifest", "m", "respack.yaml", "manifest to build")
			fs.StringVarP(&output, "output", "o", "", "write the pack here instead of the manifest's output")
			fs.BoolVar(&noExport, "no-export", false, "skip the manifest's export section")
			fs.BoolVar(&noExtract, "no-extract", false, "skip the manifest's extract section")
		}),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.ArgsError(usage, 0, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			c, err := m.Build()
			if err != nil {
				return err
			}

			out := m.OutputPath()
			if output != "" {
				out = output
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return xerrors.Wrapf(err, "create output directory for %s", out)
			}
			if err := c.SaveToFile(out); err != nil {
				return err
			}
			a.logger.Info(ctx, "pack written", "path", out, "entries", c.Len())
			fmt.Fprintf(a.stdout, "wrote %s (%d entries)\n", out, c.Len())

			if target, opts, ok := m.ExportOptions(); ok && !noExport {
				if err := c.ExportSource(target, opts); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "exported %s\n", target)
			}
			if m.Extract != nil && !noExtract {
				dir := m.Resolve(m.Extract.Dir)
				wipe := m.Extract.Wipe()
				if wipe {
					a.logger.Warn(ctx, "removing extract directory before writing pack files", "dir", dir)
				}
				if err := c.ExtractFiles(dir, wipe); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "extracted to %s\n", dir)
			}
			return nil
		},
	}
}

func (a *app) listCmd() *cli.Command {
	var asJSON bool
	const usage = "respack list FILE [--json]"
	return &cli.Command{
		Name:    "list",
		Summary: "Show the entries of a pack",
		Usage:   usage,
		Flags: a.flagSet("list", func(fs *pflag.FlagSet) {
			fs.BoolVar(&asJSON, "json", false, "print one JSON object per entry")
		}),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.ArgsError(usage, 1, len(args))
			}
			if _, err := a.setup(ctx); err != nil {
				return err
			}
			c, err := resource.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			if !asJSON {
				_, err := io.WriteString(a.stdout, c.String())
				return err
			}
			enc := json.NewEncoder(a.stdout)
			for _, e := range c.Entries() {
				if err := enc.Encode(map[string]any{
					"name": e.Name,
					"kind": e.Kind.String(),
					"type": fmt.Sprintf("%T", e.Value),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) getCmd() *cli.Command {
	const usage = "respack get FILE NAME"
	return &cli.Command{
		Name:    "get",
		Summary: "Print one entry; file payloads are written raw",
		Usage:   usage,
		Flags:   a.flagSet("get", nil),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.ArgsError(usage, 2, len(args))
			}
			if _, err := a.setup(ctx); err != nil {
				return err
			}
			c, err := resource.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			e, ok := c.Entry(args[1])
			if !ok {
				_, err := c.Get(args[1])
				return err
			}
			return writeEntry(a.stdout, e)
		},
	}
}

// writeEntry prints file payloads byte-exact and values in %v form.
func writeEntry(w io.Writer, e resource.Entry) error {
	var err error
	switch v := e.Value.(type) {
	case []byte:
		_, err = w.Write(v)
	case string:
		if e.Kind == resource.KindFile {
			_, err = io.WriteString(w, v)
		} else {
			_, err = fmt.Fprintln(w, v)
		}
	default:
		_, err = fmt.Fprintf(w, "%v\n", v)
	}
	return err
}

func (a *app) extractCmd() *cli.Command {
	var force bool
	const usage = "respack extract FILE DIR [--force]"
	return &cli.Command{
		Name:    "extract",
		Summary: "Write the file entries of a pack under DIR",
		Usage:   usage,
		Flags: a.flagSet("extract", func(fs *pflag.FlagSet) {
			fs.BoolVar(&force, "force", false, "delete DIR and everything in it first")
		}),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.ArgsError(usage, 2, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			c, err := resource.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			if force {
				a.logger.Warn(ctx, "removing destination before extract", "dir", args[1])
			}
			return c.ExtractFiles(args[1], force)
		},
	}
}

func (a *app) exportCmd() *cli.Command {
	var opts resource.ExportOptions
	const usage = "respack export FILE OUT.go [--package P] [--var V] [--embed-container]"
	return &cli.Command{
		Name:    "export",
		Summary: "Generate Go source that embeds a pack",
		Usage:   usage,
		Examples: []cli.Example{
			{Description: "standalone map[string]any, no respack import", Command: "respack export site.res assets/resources.go --package assets"},
			{Description: "embed the whole container", Command: "respack export site.res assets/resources.go --package assets --embed-container"},
		},
		Flags: a.flagSet("export", func(fs *pflag.FlagSet) {
			fs.StringVar(&opts.Package, "package", "", `package clause of the generated file (default "resources")`)
			fs.StringVar(&opts.Var, "var", "", `exported variable name (default "Resources")`)
			fs.BoolVar(&opts.EmbedContainer, "embed-container", false, "embed the serialized container instead of a plain map")
		}),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.ArgsError(usage, 2, len(args))
			}
			if _, err := a.setup(ctx); err != nil {
				return err
			}
			c, err := resource.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			return c.ExportSource(args[1], opts)
		},
	}
}

func (a *app) pushCmd() *cli.Command {
	var publish bool
	const usage = "respack push FILE [NAME] [--publish]"
	return &cli.Command{
		Name:    "push",
		Summary: "Upload a pack to S3; NAME defaults to the file name without extension",
		Usage:   usage,
		Flags: a.flagSet("push", func(fs *pflag.FlagSet) {
			fs.BoolVar(&publish, "publish", false, "also point the SSM parameter at the pushed pack")
		}),
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.ArgsError(usage, 1, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			name := packName(args[0])
			if len(args) == 2 {
				name = args[1]
			}

			c, err := resource.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}
			ref, err := st.Push(ctx, name, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "pushed %s sha256=%s\n", ref.Key, ref.SHA256)

			if publish {
				if err := st.Publish(ctx, name); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "published %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) pullCmd() *cli.Command {
	var current bool
	const usage = "respack pull (NAME | --current) OUT"
	return &cli.Command{
		Name:    "pull",
		Summary: "Download a pack from S3 and save it locally",
		Usage:   usage,
		Flags: a.flagSet("pull", func(fs *pflag.FlagSet) {
			fs.BoolVar(&current, "current", false, "pull whichever pack is published")
		}),
		Run: func(ctx context.Context, args []string) error {
			want := 2
			if current {
				want = 1
			}
			if len(args) != want {
				return cli.ArgsError(usage, want, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}

			var c *resource.Container
			if current {
				c, _, err = st.PullCurrent(ctx)
			} else {
				c, _, err = st.Pull(ctx, args[0])
			}
			if err != nil {
				return err
			}
			out := args[len(args)-1]
			if err := c.SaveToFile(out); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s (%d entries)\n", out, c.Len())
			return nil
		},
	}
}

func (a *app) publishCmd() *cli.Command {
	const usage = "respack publish NAME"
	return &cli.Command{
		Name:    "publish",
		Summary: "Point the SSM parameter at a pushed pack",
		Usage:   usage,
		Flags:   a.flagSet("publish", nil),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.ArgsError(usage, 1, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}
			if err := st.Publish(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "published %s\n", args[0])
			return nil
		},
	}
}

func (a *app) currentCmd() *cli.Command {
	const usage = "respack current"
	return &cli.Command{
		Name:    "current",
		Summary: "Print the name of the published pack",
		Usage:   usage,
		Flags:   a.flagSet("current", nil),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.ArgsError(usage, 0, len(args))
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}
			name, err := st.Current(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, name)
			return nil
		},
	}
}

func (a *app) versionCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version and build information",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("version", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "print as JSON")
			return fs
		},
		Run: func(_ context.Context, _ []string) error {
			vi := version.Get()
			if asJSON {
				return json.NewEncoder(a.stdout).Encode(vi)
			}
			_, err := fmt.Fprintln(a.stdout, vi.String())
			return err
		},
	}
}

// packName derives a store name from a pack file path: "out/site-v1.res"
// becomes "site-v1".
func packName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
