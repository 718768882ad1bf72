package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSpacesCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "spaces",
		Short: "List memory spaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSpaces(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runSpaces(cmd *cobra.Command, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	spaces, err := a.store.Spaces.List(ctx)
	if jsonOut {
		return finishJSON(cmd, map[string]any{"spaces": spaces}, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	out := console(cmd)
	if len(spaces) == 0 {
		out.Status("", "no spaces yet, run 'spiralmem init'")
		return nil
	}
	for _, s := range spaces {
		count, err := a.store.Memories.Count(ctx, s.ID)
		if err != nil {
			return reportError(cmd, err)
		}
		line := fmt.Sprintf("%s (%d memories)", s.Name, count)
		if s.Description != "" {
			line += " - " + s.Description
		}
		out.Status("🗂️", line)
	}
	return nil
}

func newCreateSpaceCmd() *cobra.Command {
	var description string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "create-space <name>",
		Short: "Create a new memory space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateSpace(cmd, args[0], description, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Space description")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runCreateSpace(cmd *cobra.Command, name, description string, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	space, err := a.store.Spaces.Create(cmd.Context(), name, description)
	if jsonOut {
		return finishJSON(cmd, space, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	console(cmd).Successf("space %q created (%s)", space.Name, space.ID)
	return nil
}
