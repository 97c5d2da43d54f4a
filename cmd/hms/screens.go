package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hms/console/internal/domain/admin"
	"github.com/hms/console/internal/domain/billing"
	"github.com/hms/console/internal/domain/examination"
	"github.com/hms/console/internal/domain/vaccination"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/pkg/pagination"
)

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "Page index, starting at 1")
	cmd.Flags().Int("size", pagination.DefaultPageSize, "Page size")
}

func pageParams(cmd *cobra.Command) pagination.Params {
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")
	return pagination.Params{PageIndex: page, PageSize: size}.Normalize()
}

func vaccinationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaccination",
		Short: "Vaccination workflow",
	}

	queueCmd := &cobra.Command{
		Use:       "queue <pre-screening|injection|follow-up>",
		Short:     "List today's visits waiting at a stage",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(vaccination.StagePreScreening), string(vaccination.StageInjection), string(vaccination.StageFollowUp)},
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := vaccination.Stage(args[0])
			screen := vaccination.ScreenPath(stage)
			if screen == "" {
				return fmt.Errorf("no queue for stage %q", args[0])
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen(screen); err != nil {
				return err
			}

			result, err := vaccination.NewService(s.manager.Client()).Queue(cmd.Context(), stage, pageParams(cmd))
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-12s %-16s %s\n", "VISIT", "PATIENT", "TICKET", "STAGE")
			for _, v := range result.Data {
				fmt.Fprintf(out, "%-12s %-12s %-16s %s\n", v.ID, v.PatientID, v.TicketID, v.Stage)
			}
			fmt.Fprintf(out, "Page %d of %d (%d waiting)\n", result.PageIndex, result.TotalPages, result.TotalItems)
			return s.result(nil)
		},
	}
	addPageFlags(queueCmd)
	cmd.AddCommand(queueCmd)

	return cmd
}

func examinationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examination",
		Short: "Examination orders and results",
	}

	historyCmd := &cobra.Command{
		Use:   "history <patient-id>",
		Short: "List a patient's examinations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen("/examination/history/" + args[0]); err != nil {
				return err
			}

			result, err := examination.NewService(s.manager.Client()).History(cmd.Context(), args[0], pageParams(cmd))
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-10s %-30s %s\n", "ORDER", "STATUS", "SERVICES", "CONCLUSION")
			for _, h := range result.Data {
				conclusion := "-"
				if h.Result != nil {
					conclusion = h.Result.Conclusion
				}
				fmt.Fprintf(out, "%-12s %-10s %-30s %s\n", h.Order.ID, h.Order.Status, joinServices(h.Order.Services), conclusion)
			}
			fmt.Fprintf(out, "Page %d of %d (%d examinations)\n", result.PageIndex, result.TotalPages, result.TotalItems)
			return s.result(nil)
		},
	}
	addPageFlags(historyCmd)
	cmd.AddCommand(historyCmd)

	return cmd
}

func joinServices(services []string) string {
	if len(services) == 0 {
		return "-"
	}
	return strings.Join(services, ",")
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Invoices and payments",
	}

	invoicesCmd := &cobra.Command{
		Use:   "invoices",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			patient, _ := cmd.Flags().GetString("patient")
			status, _ := cmd.Flags().GetString("status")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen("/billing"); err != nil {
				return err
			}

			result, err := billing.NewService(s.manager.Client()).ListInvoices(cmd.Context(), pageParams(cmd), patient, billing.InvoiceStatus(status))
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-12s %-8s %12s %12s %12s\n", "NUMBER", "PATIENT", "STATUS", "TOTAL", "PAID", "OUTSTANDING")
			for _, inv := range result.Data {
				fmt.Fprintf(out, "%-10s %-12s %-8s %12d %12d %12d\n", inv.Number, inv.PatientID, inv.Status, inv.Total, inv.Paid, inv.Outstanding())
			}
			fmt.Fprintf(out, "Page %d of %d (%d invoices)\n", result.PageIndex, result.TotalPages, result.TotalItems)
			return s.result(nil)
		},
	}
	invoicesCmd.Flags().String("patient", "", "Patient ID")
	invoicesCmd.Flags().String("status", "", "draft, issued, paid or void")
	addPageFlags(invoicesCmd)
	cmd.AddCommand(invoicesCmd)

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "User and department management",
	}

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			dept, _ := cmd.Flags().GetString("department")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen("/admin/users"); err != nil {
				return err
			}

			result, err := admin.NewService(s.manager.Client()).ListUsers(cmd.Context(), pageParams(cmd), search, permission.Department(dept))
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s %-30s %-16s %s\n", "USERNAME", "NAME", "DEPARTMENT", "ACTIVE")
			for _, u := range result.Data {
				fmt.Fprintf(out, "%-16s %-30s %-16s %t\n", u.Username, u.FullName, u.Department, u.Active)
			}
			fmt.Fprintf(out, "Page %d of %d (%d users)\n", result.PageIndex, result.TotalPages, result.TotalItems)
			return s.result(nil)
		},
	}
	usersCmd.Flags().String("search", "", "Username or name")
	usersCmd.Flags().String("department", "", "Department code")
	addPageFlags(usersCmd)
	cmd.AddCommand(usersCmd)

	return cmd
}
