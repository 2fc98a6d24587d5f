package cli

import (
	"io"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/gryphon-zone/screech/config"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/internal/output"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	file    string
	verbose bool
	noColor bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:     "screech",
		Short:   "Call HTTP APIs declared in an endpoint definition file",
		Version: version,
		Long: `Screech compiles the endpoints declared in a YAML or JSON definition
file and calls them through an interceptor pipeline, printing the request,
the response and, for repeated calls, a latency summary.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&g.file, "file", "f", "screech.yaml", "Endpoint definition file")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newDescribeCmd(g))
	cmd.AddCommand(newCallCmd(g))
	return cmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

// logger writes to w with the cli handler; --verbose enables debug
// entries.
func (g *globalFlags) logger(w io.Writer) log.Interface {
	level := log.WarnLevel
	if g.verbose {
		level = log.DebugLevel
	}
	return &log.Logger{Handler: clihandler.New(w), Level: level}
}

// formatter disables colors on request or when w is not a terminal.
func (g *globalFlags) formatter(w io.Writer) *output.Formatter {
	noColor := g.noColor
	if f, ok := w.(*os.File); !ok || !output.IsTerminal(f) {
		noColor = true
	}
	return output.NewFormatter(g.verbose, noColor)
}

// load reads, validates and converts the definition file.
func (g *globalFlags) load() (*config.File, []endpoint.Group, error) {
	file, err := config.Load(g.file)
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(file); len(errs) > 0 {
		return nil, nil, errs
	}
	groups, err := file.EndpointGroups()
	if err != nil {
		return nil, nil, err
	}
	return file, groups, nil
}
