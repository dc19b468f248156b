package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/getkayan/kcasbin"
	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <policy.csv>",
		Short: "Replace the stored policy with a casbin CSV policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model()
			if err != nil {
				return err
			}
			if err := fileadapter.NewAdapter(args[0]).LoadPolicy(m); err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ad, err := a.adapter()
			if err != nil {
				return err
			}
			defer ad.Close()

			if err := ad.SavePolicyCtx(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", len(policyLines(m)))
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the stored policy as casbin CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.model()
			if err != nil {
				return err
			}

			ad, err := a.adapter()
			if err != nil {
				return err
			}
			defer ad.Close()

			if err := ad.LoadPolicyCtx(cmd.Context(), m); err != nil {
				return err
			}
			for _, line := range policyLines(m) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <ptype> <values...>",
		Short: "Add one rule",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.adapter()
			if err != nil {
				return err
			}
			defer ad.Close()

			ptype := args[0]
			return ad.AddPolicyCtx(cmd.Context(), kcasbin.SectionOf(ptype), ptype, args[1:])
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <ptype> <values...>",
		Short: "Remove the rules matching the given values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.adapter()
			if err != nil {
				return err
			}
			defer ad.Close()

			ptype := args[0]
			return ad.RemovePolicyCtx(cmd.Context(), kcasbin.SectionOf(ptype), ptype, args[1:])
		},
	}
}

func newRemoveFilteredCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-filtered <ptype> <field-index> [values...]",
		Short: "Remove the rules whose fields match from field-index on",
		Long: "Remove the rules of ptype whose fields, starting at field-index, equal the given values.\n" +
			"An empty value matches anything. Without values every rule of ptype is removed.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid field index %q: %w", args[1], err)
			}

			ad, err := a.adapter()
			if err != nil {
				return err
			}
			defer ad.Close()

			ptype := args[0]
			return ad.RemoveFilteredPolicyCtx(cmd.Context(), kcasbin.SectionOf(ptype), ptype, idx, args[2:]...)
		},
	}
}

// policyLines renders the p and g rules of m as CSV lines, ptypes in sorted
// order.
func policyLines(m model.Model) []string {
	var lines []string
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range slices.Sorted(maps.Keys(m[sec])) {
			for _, r := range m[sec][ptype].Policy {
				lines = append(lines, strings.Join(append([]string{ptype}, r...), ", "))
			}
		}
	}
	return lines
}
