package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/console/internal/config"
	"github.com/hms/console/internal/domain/inventory"
	"github.com/hms/console/internal/domain/reception"
	"github.com/hms/console/internal/domain/reporting"
	"github.com/hms/console/internal/platform/guard"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/session"
)

var (
	errNotSignedIn = errors.New("not signed in; run `hms login`")
	errDenied      = errors.New("access denied")
)

// cliSession is one CLI invocation's session: tokens and redirectUrl live in
// the credentials file, and the location is the screen the command opens.
type cliSession struct {
	cfg     *config.Config
	store   *session.FileStore
	nav     *session.RecordingNavigator
	manager *session.Manager
	guard   *guard.Guard
}

func openSession(cmd *cobra.Command) (*cliSession, error) {
	path, _ := cmd.Flags().GetString("credentials")
	if path == "" {
		p, err := session.DefaultCredentialsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := session.OpenFileStore(path)
	if err != nil {
		return nil, err
	}

	// The backend comes from --server, then API_BASE_URL, then the server the
	// stored tokens were issued by.
	var opts []config.Option
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		opts = append(opts, config.WithOverride("API_BASE_URL", server))
	} else if store.Server() != "" {
		opts = append(opts, config.WithFallback("API_BASE_URL", store.Server()))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()

	policy, err := permission.DefaultPolicy()
	if err != nil {
		return nil, err
	}
	g, err := guard.New(policy, logger)
	if err != nil {
		return nil, err
	}

	nav := session.NewRecordingNavigator(session.HomeRoute)
	m := session.NewManager(session.Config{
		API:       cfg.API(),
		Tokens:    store,
		Redirects: store,
		Navigator: nav,
		Logger:    logger,
	})
	if err := m.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return &cliSession{cfg: cfg, store: store, nav: nav, manager: m, guard: g}, nil
}

// close surfaces a failed credentials write.
func (s *cliSession) close() error {
	return s.store.Err()
}

// openScreen runs the route guard for path and moves there, so an expired
// session remembers it as the redirectUrl.
func (s *cliSession) openScreen(path string) error {
	d := s.guard.Check(s.manager, path)
	switch {
	case d.Outcome == guard.OutcomeAllow:
		s.nav.Navigate(path)
		return nil
	case d.Redirect == session.LoginRoute:
		return errNotSignedIn
	default:
		return fmt.Errorf("%w: %s (%s)", errDenied, path, d.Reason)
	}
}

// result maps an expired session onto the login hint.
func (s *cliSession) result(err error) error {
	if err != nil && s.manager.User() == nil {
		return fmt.Errorf("%w (session ended: %v)", errNotSignedIn, err)
	}
	if err != nil {
		return err
	}
	return s.close()
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("HMS_PASSWORD")
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				if username, err = prompt(cmd.ErrOrStderr(), in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(cmd.ErrOrStderr(), in, "Password: "); err != nil {
					return err
				}
			}

			user, err := s.manager.Login(cmd.Context(), session.Credentials{Username: username, Password: password})
			if err != nil {
				var le *session.LoginError
				if errors.As(err, &le) {
					return fmt.Errorf("login rejected: %s", le.MessageKey)
				}
				return err
			}
			s.store.SetServer(s.cfg.APIBaseURL)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", user.Username, user.FullName)
			if loc := s.nav.Location(); loc != session.HomeRoute {
				fmt.Fprintf(out, "Continue at %s\n", loc)
			}
			return s.close()
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().String("password", "", "Password (default $HMS_PASSWORD, else prompt)")
	return cmd
}

func prompt(w io.Writer, r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			s.manager.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return s.close()
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			user := s.manager.User()
			if user == nil {
				return errNotSignedIn
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %s\n", "Username:", user.Username)
			fmt.Fprintf(out, "%-12s %s\n", "Name:", user.FullName)
			fmt.Fprintf(out, "%-12s %s\n", "Roles:", joinRoles(user.Roles))
			fmt.Fprintf(out, "%-12s %s\n", "Department:", user.Department)
			fmt.Fprintf(out, "%-12s %s\n", "Access:", formatGrants(user.Permissions))
			if exp, err := s.manager.TokenExpiry(); err == nil {
				fmt.Fprintf(out, "%-12s %s (%s)\n", "Token:", exp.Local().Format(time.RFC3339), remaining(exp))
			}
			return s.close()
		},
	}
}

func joinRoles(roles []permission.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func formatGrants(g permission.Grants) string {
	parts := make([]string, 0, len(g))
	for _, rt := range permission.AllResourceTypes() {
		if m, ok := g[rt]; ok {
			parts = append(parts, fmt.Sprintf("%s:%s", rt, m))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func remaining(exp time.Time) string {
	d := time.Until(exp).Round(time.Second)
	if d <= 0 {
		return "expired"
	}
	return d.String() + " left"
}

func canCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can <screen-path>",
		Short: "Check whether the signed-in user may open a screen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			user := s.manager.User()
			if user == nil {
				return errNotSignedIn
			}

			d := s.guard.Policy().Allow(user.Subject(), args[0])
			out := cmd.OutOrStdout()
			if !d.Allowed {
				fmt.Fprintf(out, "denied  %s: %s\n", args[0], d.Reason)
				return errDenied
			}
			fmt.Fprintf(out, "allowed %s (route %s)\n", args[0], d.Route)
			return s.close()
		},
	}
}

func navCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "Print the navigation menu for the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if s.manager.User() == nil {
				return errNotSignedIn
			}
			printMenu(cmd.OutOrStdout(), s.guard.Navigation(s.manager.User()), 0)
			return s.close()
		},
	}
}

func printMenu(w io.Writer, items []guard.MenuItem, depth int) {
	for _, it := range items {
		indent := strings.Repeat("  ", depth)
		if it.Path != "" {
			fmt.Fprintf(w, "%s%-*s %s\n", indent, 36-len(indent), it.Key, it.Path)
		} else {
			fmt.Fprintf(w, "%s%s\n", indent, it.Key)
		}
		printMenu(w, it.Children, depth+1)
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Reception patient records",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Search registered patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen("/reception/patients"); err != nil {
				return err
			}

			result, err := reception.NewService(s.manager.Client()).SearchPatients(cmd.Context(), pageParams(cmd), search)
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-10s %-30s %-12s %s\n", "ID", "CODE", "NAME", "BORN", "PHONE")
			for _, p := range result.Data {
				fmt.Fprintf(out, "%-12s %-10s %-30s %-12s %s\n", p.ID, p.Code, p.FullName, p.DateOfBirth, p.Phone)
			}
			fmt.Fprintf(out, "Page %d of %d (%d patients)\n", result.PageIndex, result.TotalPages, result.TotalItems)
			return s.result(nil)
		},
	}
	listCmd.Flags().String("search", "", "Name, code or phone")
	addPageFlags(listCmd)
	cmd.AddCommand(listCmd)

	return cmd
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Stock levels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "low-stock",
		Short: "List items at or below their reorder level",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			if err := s.openScreen("/inventory"); err != nil {
				return err
			}

			items, err := inventory.NewService(s.manager.Client()).LowStock(cmd.Context())
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items below their reorder level.")
				return s.result(nil)
			}
			fmt.Fprintf(out, "%-10s %-30s %8s %8s %9s\n", "CODE", "NAME", "QTY", "MIN", "SHORTFALL")
			for _, it := range items {
				fmt.Fprintf(out, "%-10s %-30s %8d %8d %9d\n", it.Code, it.Name, it.Quantity, it.MinQuantity, it.Shortfall())
			}
			return s.result(nil)
		},
	})
	return cmd
}

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Management reports",
	}

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the manager dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := openReport(cmd)
			if err != nil {
				return err
			}

			d, err := reporting.NewService(s.manager.Client()).Dashboard(cmd.Context(), r)
			if err != nil {
				return s.result(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dashboard %s to %s\n", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
			fmt.Fprintf(out, "  %-14s invoiced %d, collected %d, outstanding %d\n", "Revenue:", d.Revenue.Invoiced, d.Revenue.Collected, d.Revenue.Outstanding)
			fmt.Fprintf(out, "  %-14s %d examinations, %d vaccinations, %d waiting\n", "Visits:", d.Visits.Examinations, d.Visits.Vaccinations, d.Visits.Waiting)
			fmt.Fprintf(out, "  %-14s %d completed, %d deferred, %d reactions\n", "Vaccinations:", d.Vaccinations.Completed, d.Vaccinations.Deferred, d.Vaccinations.Reactions)
			fmt.Fprintf(out, "  %-14s %d items\n", "Low stock:", d.LowStock)
			return s.result(nil)
		},
	}
	addRangeFlags(dashboardCmd)
	cmd.AddCommand(dashboardCmd)

	runCmd := &cobra.Command{
		Use:   "run <report-id>",
		Short: "Run a catalogue report and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := openReport(cmd)
			if err != nil {
				return err
			}

			rep, err := reporting.NewService(s.manager.Client()).Run(cmd.Context(), args[0], r)
			if err != nil {
				return s.result(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			return s.result(nil)
		},
	}
	addRangeFlags(runCmd)
	cmd.AddCommand(runCmd)

	return cmd
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "First day, YYYY-MM-DD (default: start of the month)")
	cmd.Flags().String("to", "", "Last day, YYYY-MM-DD (default: today)")
}

func openReport(cmd *cobra.Command) (*cliSession, reporting.DateRange, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	r, err := reporting.ParseRange(from, to, time.Now())
	if err != nil {
		return nil, reporting.DateRange{}, err
	}

	s, err := openSession(cmd)
	if err != nil {
		return nil, reporting.DateRange{}, err
	}
	if err := s.openScreen("/reports"); err != nil {
		return nil, reporting.DateRange{}, err
	}
	return s, r, nil
}
