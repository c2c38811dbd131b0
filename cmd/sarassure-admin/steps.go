package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarassure/sarassure/internal/boot"
	"github.com/sarassure/sarassure/internal/cache"
	"github.com/sarassure/sarassure/internal/cli"
	"github.com/sarassure/sarassure/internal/datastore"
	"github.com/sarassure/sarassure/internal/resilient"
)

var exerciseFlag string

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Inspect exercises and their steps",
}

var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exercises, or the steps of one exercise",
	Long: `Without --exercise, lists every exercise. With it, lists that exercise's
steps and their target areas. Results are cached in the configured store and
served from it when Supabase cannot be reached.`,
	RunE: runStepsList,
}

func init() {
	stepsListCmd.Flags().StringVarP(&exerciseFlag, "exercise", "e", "", "Exercise ID")
	stepsCmd.AddCommand(stepsListCmd)
}

func runStepsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env := cli.InitClient(ctx)

	store, closeStore, err := boot.CacheStore(ctx, env.Config, env.AWS)
	if err != nil {
		return err
	}
	defer closeStore()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if exerciseFlag == "" {
		exercises, err := resilient.Fetch(ctx, env.Client.ListExercises,
			cache.New[[]datastore.Exercise](store, "exercises"), "exercises")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tPOSITION\tTITLE")
		for _, e := range exercises {
			fmt.Fprintf(w, "%s\t%d\t%s\n", e.ID, e.Position, e.Title)
		}
		return nil
	}

	steps, err := resilient.Fetch(ctx, func(ctx context.Context) ([]datastore.Step, error) {
		return env.Client.ListSteps(ctx, exerciseFlag)
	}, cache.New[[]datastore.Step](store, "steps"), "steps:"+exerciseFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tPOSITION\tAREA\tINSTRUCTION")
	for _, s := range steps {
		placed := "-"
		if s.TargetArea != nil {
			placed = cli.FormatArea(*s.TargetArea)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ID, s.Position, placed, s.Instruction)
	}
	return nil
}
