// tether is an interactive shell over the reference host with a set of
// sample bindings: Counter, the Shape hierarchy, the Color enum and the
// Calc module.
//
//	$ tether shell
//	>> $c = Counter.new(5)
//	#<Counter>
//	>> $c.add(3)
//	8
//	>> Calc.mul(42, 2)
//	84
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/feather-lang/tether"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/rtti"
	"github.com/feather-lang/tether/vm"
)

// app is the state shared by the subcommands.
type app struct {
	logLevel  string
	logFormat string
	maxDepth  int

	rt *vm.VM
	b  *tether.Binder
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "tether",
		Short:        "Shell over Go types bound to the reference host",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")
	root.PersistentFlags().IntVar(&a.maxDepth, "max-depth", 0, "maximum call depth (0 for the default)")

	root.AddCommand(a.shellCmd(), a.evalCmd(), a.typesCmd())
	return root
}

func (a *app) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", a.logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch a.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", a.logFormat)
}

func (a *app) setup(logOut io.Writer) error {
	log, err := a.logger(logOut)
	if err != nil {
		return err
	}
	var opts []vm.Option
	if a.maxDepth > 0 {
		opts = append(opts, vm.WithMaxDepth(a.maxDepth))
	}
	a.rt = vm.New(opts...)
	a.b = tether.New(a.rt, tether.WithLogger(log))
	return bind(a.b)
}

func (a *app) close() {
	if a.b != nil {
		a.b.Close()
	}
	if a.rt != nil {
		a.rt.Close()
	}
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Evaluate call chains interactively, or line by line from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(a.rt)
			if term.IsTerminal(int(os.Stdin.Fd())) {
				return a.repl(s, NewLineEditor(os.Stdin, cmd.OutOrStdout()), cmd.OutOrStdout())
			}
			return a.script(s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expr>...",
		Short: "Evaluate each argument and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(a.rt)
			for _, src := range args {
				v, err := s.eval(src)
				if err != nil {
					return errors.New(describeError(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.rt.Inspect(v))
			}
			return nil
		},
	}
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered Go types and their host classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listTypes(cmd.OutOrStdout())
		},
	}
}

func (a *app) listTypes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCLASS\tSUPERCLASS\tMETHODS")
	for _, e := range a.b.Registry().Entries() {
		if e.Placeholder() {
			fmt.Fprintf(tw, "%s\t-\t-\t\n", rtti.Name(e.Type))
			continue
		}
		methods := a.b.Methods().Methods(e.Class)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			rtti.Name(e.Type),
			a.rt.ClassName(e.Class),
			a.rt.ClassName(a.rt.Superclass(e.Class)),
			strings.Join(methods, " "))
	}
	return tw.Flush()
}

// command runs a shell command. It reports false for input to evaluate.
func (a *app) command(line string, w io.Writer) (quit, ok bool) {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true, true
	case "types":
		a.listTypes(w)
		return false, true
	case "gc":
		fmt.Fprintf(w, "collected %d objects\n", a.rt.Collect())
		return false, true
	}
	return false, false
}

func (a *app) repl(s *session, ed *LineEditor, w io.Writer) error {
	for {
		line, err := ed.ReadLine(">> ")
		if errors.Is(err, errInterrupted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit, ok := a.command(line, w); quit {
			return nil
		} else if ok {
			continue
		}
		a.print(s, line, w)
	}
}

func (a *app) script(s *session, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	failed := false
	for sc.Scan() {
		line := sc.Text()
		if quit, ok := a.command(line, w); quit {
			break
		} else if ok {
			continue
		}
		if !a.print(s, line, w) {
			failed = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if failed {
		return errors.New("evaluation failed")
	}
	return nil
}

func (a *app) print(s *session, line string, w io.Writer) bool {
	v, err := s.eval(line)
	if err != nil {
		fmt.Fprintf(w, "error: %s\n", describeError(err))
		return false
	}
	fmt.Fprintln(w, a.rt.Inspect(v))
	return true
}

func describeError(err error) string {
	if exc, ok := host.AsException(err); ok {
		return exc.ClassName + ": " + exc.Message
	}
	return err.Error()
}
