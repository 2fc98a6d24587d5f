package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gryphon-zone/screech/endpoint"
)

func newDescribeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [endpoint...]",
		Short: "Print the compiled form of every endpoint, or of the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, groups, err := g.load()
			if err != nil {
				return err
			}
			var descriptors []*endpoint.Descriptor
			for _, group := range groups {
				compiled, err := endpoint.CompileGroup(group)
				if err != nil {
					return err
				}
				descriptors = append(descriptors, compiled...)
			}

			if len(args) > 0 {
				descriptors = slices.DeleteFunc(descriptors, func(d *endpoint.Descriptor) bool {
					return !slices.Contains(args, d.Name)
				})
				if len(descriptors) < len(args) {
					return fmt.Errorf("unknown endpoint in %s", strings.Join(args, ", "))
				}
			}

			formatter := g.formatter(cmd.OutOrStdout())
			out := make([]string, len(descriptors))
			for i, d := range descriptors {
				out[i] = formatter.FormatDescriptor(d)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), strings.Join(out, "\n"))
			return err
		},
	}
}
