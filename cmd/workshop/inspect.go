package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/observability"
	"github.com/jonathan/problem-workshop/internal/steps"
	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/userkey"
)

var (
	inspectKey     string
	inspectStorage string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show a user's progress across activities",
	Long:  "Look up a user code and print, per activity, the step it resumes at and a summary of every answer.",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectKey, "key", "k", "", "User code to inspect (required)")
	inspectCmd.Flags().StringVar(&inspectStorage, "storage", "", "Storage backend (overrides config)")

	if err := inspectCmd.MarkFlagRequired("key"); err != nil {
		panic(fmt.Sprintf("failed to mark key flag as required: %v", err))
	}

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, _ []string) error {
	key := userkey.Normalize(inspectKey)
	if !userkey.Valid(key) {
		return fmt.Errorf("invalid user code %q", inspectKey)
	}

	cfg, err := loadConfig(0, inspectStorage)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	gateway := storage.NewGateway(store, zap.NewNop())
	defer func() { _ = gateway.Close() }()

	record, err := gateway.Lookup(cmd.Context(), key)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no record found for user code %s", key)
	}

	catalog, err := activity.DefaultCatalog()
	if err != nil {
		return err
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintRecord(buildReport(catalog, record))
	return nil
}

// buildReport summarises record against the catalog. Activities the catalog does not
// know are listed after the known ones with their raw answers.
func buildReport(catalog *activity.Catalog, record *types.UserRecord) *observability.RecordReport {
	report := &observability.RecordReport{
		Key:         record.Key,
		Version:     record.Version,
		CreatedAt:   formatTime(record.CreatedAt),
		LastUpdated: formatTime(record.LastUpdated),
	}

	known := make(map[string]bool, len(catalog.Activities))
	for _, def := range catalog.Activities {
		known[def.ID] = true
		report.Activities = append(report.Activities, activityReport(def, record))
	}

	var unknown []string
	for id := range record.Activities {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	slices.Sort(unknown)
	for _, id := range unknown {
		st := record.Activities[id]
		ar := observability.ActivityReport{ID: id, Title: id, Started: st.HasData(), Step: st.Step}
		names := make([]string, 0, len(st.StepAnswers))
		for name := range st.StepAnswers {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			ar.Fields = append(ar.Fields, observability.FieldReport{
				Name:    name,
				Summary: steps.Describe(nil, st.StepAnswers[name]),
			})
		}
		report.Activities = append(report.Activities, ar)
	}
	return report
}

func activityReport(def *activity.Definition, record *types.UserRecord) observability.ActivityReport {
	ar := observability.ActivityReport{ID: def.ID, Title: def.Title, TotalSteps: def.TotalSteps(), Step: 1}

	st, ok := record.Activity(def.ID)
	if !ok || !st.HasData() {
		return ar
	}

	answers := def.NormalizeAnswers(st.StepAnswers)
	ar.Started = true
	ar.Step = def.ResumeStep(st, answers)
	ar.Completed = st.CompletedAt != nil && ar.Step == ar.TotalSteps

	for _, step := range def.Steps {
		for i := range step.Fields {
			rule := &step.Fields[i]
			value, present := answers[rule.Name]
			if !present {
				continue
			}
			ar.Fields = append(ar.Fields, observability.FieldReport{
				Name:    rule.Name,
				Summary: steps.Describe(rule, value),
				Valid:   rule.Satisfied(value),
			})
		}
	}
	return ar
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
