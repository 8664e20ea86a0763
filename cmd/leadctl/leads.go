package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

func parseLeadID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid lead id %q", raw)
	}
	return id, nil
}

func newClaimCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "claim <lead-id>",
		GroupID: "leads",
		Short:   "Claim an unclaimed lead for --actor",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, err := parseLeadID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireActor(); err != nil {
				return err
			}
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}

			res, err := a.leads.ClaimLead(cmd.Context(), leadID, a.actor)
			if err != nil {
				return err
			}
			return a.print(res, "Claimed lead %d for principal %d (next: %s)", res.Lead.ID, a.actor, res.Next)
		},
	}
}

func newProgressCmd(a *app) *cobra.Command {
	var contact, items, design string
	cmd := &cobra.Command{
		Use:     "progress <lead-id>",
		GroupID: "leads",
		Short:   "Set or clear progress flags on a claimed lead",
		Long: `Set or clear progress flags. Only the flags given are changed.

  leadctl progress 12 --actor 3 --contact=true --items=true
  leadctl progress 12 --actor 3 --items=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, err := parseLeadID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireActor(); err != nil {
				return err
			}

			var update domain.ProgressUpdate
			for _, f := range []struct {
				name string
				raw  string
				dst  **bool
			}{
				{"contact", contact, &update.ContactComplete},
				{"items", items, &update.ItemsConfirmed},
				{"design", design, &update.SubmittedToDesign},
			} {
				if !cmd.Flags().Changed(f.name) {
					continue
				}
				v, err := strconv.ParseBool(f.raw)
				if err != nil {
					return fmt.Errorf("--%s must be true or false", f.name)
				}
				*f.dst = domain.Bool(v)
			}

			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}
			lead, err := a.leads.SetLeadProgress(cmd.Context(), leadID, a.actor, update)
			if err != nil {
				return err
			}
			return a.print(lead, "Lead %d: contact=%t items=%t design=%t (%s)",
				lead.ID, lead.ContactComplete, lead.ItemsConfirmed, lead.SubmittedToDesign, lead.Stage())
		},
	}
	cmd.Flags().StringVar(&contact, "contact", "", "contactComplete flag")
	cmd.Flags().StringVar(&items, "items", "", "itemsConfirmed flag")
	cmd.Flags().StringVar(&design, "design", "", "submittedToDesign flag")
	return cmd
}

func newContactCmd(a *app) *cobra.Command {
	var method, notes string
	cmd := &cobra.Command{
		Use:     "contact <lead-id>",
		GroupID: "leads",
		Short:   "Log a contact with a claimed lead",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, err := parseLeadID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireActor(); err != nil {
				return err
			}
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}

			res, err := a.leads.LogContact(cmd.Context(), leadID, a.actor, method, notes)
			if err != nil {
				return err
			}
			return a.print(res, "Logged %s contact #%d on lead %d", res.Log.ContactMethod, res.Log.ID, leadID)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "email, phone, in-person, video or text")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "what was discussed")
	return cmd
}

func newContactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "contacts <lead-id>",
		GroupID: "leads",
		Short:   "List a lead's contact history, oldest first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, err := parseLeadID(args[0])
			if err != nil {
				return err
			}
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}

			logs, err := a.leads.ListContactLogs(cmd.Context(), leadID)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.print(logs, "")
			}
			for _, l := range logs {
				notes := ""
				if l.Notes != nil {
					notes = *l.Notes
				}
				fmt.Fprintf(a.out, "%s  #%d  %-9s  by %d  %s\n",
					l.Timestamp.Format(time.RFC3339), l.ID, l.ContactMethod, l.UserID, notes)
			}
			return nil
		},
	}
}
