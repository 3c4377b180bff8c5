package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/renderinc/docket-monitor/internal/model"
)

func casesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Manage monitored cases",
		Long:  `Register cases, change their priority, queue re-checks and toggle notifications.`,
	}

	cmd.AddCommand(casesAddCmd())
	cmd.AddCommand(casesListCmd())
	cmd.AddCommand(casesImportCmd())
	cmd.AddCommand(casesRecheckCmd())
	cmd.AddCommand(casesNotifyCmd("enable", true))
	cmd.AddCommand(casesNotifyCmd("disable", false))

	return cmd
}

func casesAddCmd() *cobra.Command {
	var priority, name string

	cmd := &cobra.Command{
		Use:   "add <court> <case-number>",
		Short: "Register a case or change its priority",
		Example: `  docket-monitor cases add nysd 1:23-cv-01234 --priority high
  docket-monitor cases add txed 2:21-cv-00234 --name "Smith v. Jones"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				c := &model.Case{
					CourtID:    args[0],
					CaseNumber: args[1],
					Name:       name,
					Priority:   model.Priority(priority),
				}
				created, err := a.registry.Upsert(ctx, c)
				if err != nil {
					return err
				}
				verb := "updated"
				if created {
					verb = "added"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (priority %s)\n", verb, c.ID, c.Priority)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", string(model.PriorityMedium), "polling priority (high, medium, low)")
	cmd.Flags().StringVar(&name, "name", "", "display name for new cases")
	return cmd
}

func casesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				cases, err := a.registry.List(ctx)
				if err != nil {
					return err
				}
				if len(cases) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cases registered. Add one with: docket-monitor cases add <court> <case-number>")
					return nil
				}

				counts := make(map[string]int, len(cases))
				for _, c := range cases {
					n, err := a.db.CountEntries(ctx, c.ID)
					if err != nil {
						return fmt.Errorf("counting entries for %s: %w", c.ID, err)
					}
					counts[c.ID] = n
				}
				return writeCaseTable(cmd.OutOrStdout(), cases, counts)
			})
		},
	}
}

func writeCaseTable(w io.Writer, cases []*model.Case, counts map[string]int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tENTRIES\tLAST CHECKED\tLAST UPDATED\tNOTIFY\tNAME")
	for _, c := range cases {
		notify := "on"
		if !c.NotificationEnabled {
			notify = "off"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			c.ID, c.Priority, counts[c.ID], formatWhen(c.LastChecked), formatWhen(c.LastUpdated), notify, c.Name)
	}
	return tw.Flush()
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// caseFile is the YAML layout accepted by cases import
type caseFile struct {
	Cases []caseRecord `yaml:"cases"`
}

type caseRecord struct {
	Court         string            `yaml:"court"`
	CaseNumber    string            `yaml:"case_number"`
	Priority      string            `yaml:"priority"`
	Name          string            `yaml:"name"`
	Notifications *bool             `yaml:"notifications"`
	Metadata      map[string]string `yaml:"metadata"`
}

// importedCase pairs a case with its requested notification setting
type importedCase struct {
	Case          *model.Case
	Notifications *bool
}

// parseCaseFile decodes and checks an import file before anything is written
func parseCaseFile(r io.Reader) ([]importedCase, error) {
	var f caseFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing case file: %w", err)
	}

	out := make([]importedCase, 0, len(f.Cases))
	for i, rec := range f.Cases {
		if strings.TrimSpace(rec.Court) == "" || strings.TrimSpace(rec.CaseNumber) == "" {
			return nil, fmt.Errorf("case %d: court and case_number are required", i+1)
		}
		if rec.Priority == "" {
			rec.Priority = string(model.PriorityMedium)
		}
		p, err := model.ParsePriority(rec.Priority)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		out = append(out, importedCase{
			Case: &model.Case{
				CourtID:    rec.Court,
				CaseNumber: rec.CaseNumber,
				Name:       rec.Name,
				Priority:   p,
				Metadata:   model.Metadata(rec.Metadata),
			},
			Notifications: rec.Notifications,
		})
	}
	return out, nil
}

func casesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register cases in bulk from a YAML file",
		Long: `Register every case listed in a YAML file. Existing cases only have
their priority updated.

  cases:
    - court: nysd
      case_number: 1:23-cv-01234
      priority: high
      name: Acme Corp v. Widget LLC
      notifications: true
      metadata:
        judge: Hon. Jane Doe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening case file: %w", err)
			}
			defer f.Close()

			cases, err := parseCaseFile(f)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				var added, updated int
				for _, ic := range cases {
					created, err := a.registry.Upsert(ctx, ic.Case)
					if err != nil {
						return err
					}
					if created {
						added++
					} else {
						updated++
					}
					if ic.Notifications != nil {
						if err := a.registry.SetNotifications(ctx, ic.Case.ID, *ic.Notifications); err != nil {
							return err
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cases (%d added, %d updated)\n", len(cases), added, updated)
				return nil
			})
		},
	}
}

func casesRecheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <case-id>",
		Short: "Make a case due on the next cycle",
		Long:  `Clear the case's last-checked time so the next cycle checks it regardless of priority.`,
		Example: `  docket-monitor cases recheck nysd:1:23-cv-01234`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.registry.ForceCheck(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s queued for re-check\n", args[0])
				return nil
			})
		},
	}
}

func casesNotifyCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <case-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " notifications for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.registry.SetNotifications(ctx, args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "notifications %sd for %s\n", use, args[0])
				return nil
			})
		},
	}
}
