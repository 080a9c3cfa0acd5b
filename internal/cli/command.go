// Package cli is a small command tree over pflag: each Command owns its
// flags, subcommands are picked by the first positional argument, and
// help output is generated from the tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

type Command struct {
	// Name as typed by the user.
	Name string

	// Summary is the one-liner shown in the parent's command list.
	Summary string

	// Usage replaces the synthesized usage line, e.g. "respack get FILE NAME".
	Usage string

	Examples []Example

	// Flags builds the command's flag set. It is called each time flags
	// are needed, so it must return a fresh set.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional args left after flag parsing.
	Run func(ctx context.Context, args []string) error

	// Output receives help text; inherited from the parent, default stderr.
	Output io.Writer

	parent *Command
}

type Example struct {
	Description string
	Command     string
}

// Execute parses args and dispatches down the tree.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.out())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name := args[0]
		for _, sub := range c.Subcommands {
			if sub.Name == name {
				sub.parent = c
				return sub.Execute(ctx, args[1:])
			}
		}
		if s := suggestCommand(name, c.Subcommands); s != "" {
			return usagef("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.", name, s, c.FullName())
		}
		return usagef("unknown command %q\n\nRun '%s --help' for usage.", name, c.FullName())
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(c.out())
		return usagef("%s: subcommand required", c.FullName())
	}

	if c.Flags != nil {
		fs := c.Flags()
		fs.SetOutput(io.Discard)
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.PrintHelp(c.out())
				return nil
			}
			msg := err.Error()
			if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand") {
				if s := suggestFlag(args, c.Flags()); s != "" {
					return usagef("%s (did you mean %s?)\n\nRun '%s --help' for usage.", msg, s, c.FullName())
				}
			}
			return usagef("%s\n\nRun '%s --help' for usage.", msg, c.FullName())
		}
		args = fs.Args()
	}

	if c.Run == nil {
		c.PrintHelp(c.out())
		return usagef("no action defined for %q", c.FullName())
	}
	return c.Run(ctx, args)
}

// PrintHelp writes usage, subcommands, flags and examples to w.
func (c *Command) PrintHelp(w io.Writer) {
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", c.FullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.FullName())
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		_ = tw.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, ex := range c.Examples {
			if ex.Description != "" {
				fmt.Fprintf(w, "  # %s\n", ex.Description)
			}
			fmt.Fprintf(w, "  %s\n\n", ex.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", c.FullName())
	}
}

// FullName is the command path, e.g. "respack push".
func (c *Command) FullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.FullName() + " " + c.Name
}

func (c *Command) out() io.Writer {
	for cmd := c; cmd != nil; cmd = cmd.parent {
		if cmd.Output != nil {
			return cmd.Output
		}
	}
	return os.Stderr
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
