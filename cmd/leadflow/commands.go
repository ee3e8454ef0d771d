package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/intake"
	"github.com/TobiSchelling/leadflow/internal/kpi"
	"github.com/TobiSchelling/leadflow/internal/outcome"
	"github.com/TobiSchelling/leadflow/internal/pipeline"
	"github.com/TobiSchelling/leadflow/internal/server"
	"github.com/TobiSchelling/leadflow/internal/targeting"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Merge every configured feed into the customer base",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Ingesting %d feed(s)...\n", len(cfg.Feeds))
		result, err := intake.NewPipeline(cfg.Feeds, db, logger).Run(cmd.Context())
		if err != nil {
			return fail("ingest", err)
		}
		printIngest(result)
		return nil
	},
}

func printIngest(result *intake.Result) {
	for _, f := range result.Feeds {
		if f.Err != nil {
			fmt.Printf("  %s: FAILED: %v\n", f.Name, f.Err)
			continue
		}
		fmt.Printf("  %s: %d rows, %d new, %d updated, %d skipped\n",
			f.Name, f.Processed, f.NewCustomers, f.UpdatedCustomers, f.Skipped)
	}
	t := result.Totals
	fmt.Printf("\nTotal: %d rows processed, %d new customers, %d updated, %d new lead sources, %d skipped, %d errors\n",
		t.Processed, t.NewCustomers, t.UpdatedCustomers, t.NewSources, t.Skipped, t.Errors)
	if n := result.FailedFeeds(); n > 0 {
		fmt.Printf("%d feed(s) failed; see 'leadflow logs'.\n", n)
	}
}

var validateFeedsCmd = &cobra.Command{
	Use:   "validate-feeds",
	Short: "Check that every feed is reachable and its columns are mapped",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		checks := intake.NewPipeline(cfg.Feeds, db, logger).Validate(cmd.Context())
		bad := 0
		for _, c := range checks {
			mark := "ok"
			if !c.OK() {
				mark = "FAIL"
				bad++
			}
			fmt.Printf("[%s] %s (%s %s)\n", mark, c.Name, c.Kind, c.Location)
			if c.Err != nil {
				fmt.Printf("       %v\n", c.Err)
				continue
			}
			fmt.Printf("       %d data rows\n", c.DataRows)
			if len(c.MissingColumns) > 0 {
				fmt.Printf("       missing columns: %s\n", strings.Join(c.MissingColumns, ", "))
			}
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d feed(s) failed validation", bad, len(checks))
		}
		fmt.Printf("\nAll %d feed(s) valid.\n", len(checks))
		return nil
	},
}

// --- targets ---

var (
	targetsDate  string
	targetsAgent string
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Regenerate each agent's TODAY_CALL sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		asOf, err := asOfFlag(db, targetsDate)
		if err != nil {
			return err
		}

		selector := targeting.NewSelector(db, cfg.Targeting.Statuses, logger)
		agents := []string{targetsAgent}
		if targetsAgent == "" {
			if agents, err = selector.Agents(cfg.Agents); err != nil {
				return fail("resolving agents", err)
			}
		}

		results, err := selector.Generate(cmd.Context(), agents, asOf)
		if err != nil {
			return fail("generating targets", err)
		}
		if len(results) == 0 {
			fmt.Println("No agents configured or discovered.")
			return nil
		}
		for _, r := range results {
			fmt.Printf("  %s: %d of %d customers\n", r.Sheet, r.Entries, r.Breakdown.Total)
		}
		return nil
	},
}

var debugTargetsCmd = &cobra.Command{
	Use:   "debug-targets [agent]",
	Short: "Explain why customers are or are not on an agent's call list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		asOf, err := asOfFlag(db, targetsDate)
		if err != nil {
			return err
		}

		selector := targeting.NewSelector(db, cfg.Targeting.Statuses, logger)
		entries, b, err := selector.SelectTargets(cmd.Context(), args[0], asOf)
		if err != nil {
			return fail("selecting targets", err)
		}

		fmt.Printf("Agent %s as of %s\n\n", args[0], database.FormatDate(asOf))
		fmt.Printf("  Customers:                %d\n", b.Total)
		fmt.Printf("  Already called today:     %d\n", b.AlreadyCalledToday)
		fmt.Printf("  Status not targeted:      %d\n", b.WrongStatus)
		fmt.Printf("  Next action in future:    %d\n", b.FutureNextAction)
		fmt.Printf("  Eligible:                 %d\n", b.Eligible)

		fmt.Println("\nBy status:")
		for _, s := range sortedKeys(b.ByStatus) {
			fmt.Printf("  %s: %d\n", s, b.ByStatus[s])
		}

		if verbose {
			fmt.Println("\nEntries:")
			for _, e := range entries {
				fmt.Printf("  %s %s (%s) calls=%d last=%s\n",
					e.CustomerID, e.FullName, e.Status, e.CallCount, e.LastCallDate)
			}
		}
		return nil
	},
}

func init() {
	targetsCmd.Flags().StringVar(&targetsDate, "date", "", "Select as of this date (default today)")
	targetsCmd.Flags().StringVar(&targetsAgent, "agent", "", "Only regenerate this agent's sheet")
	debugTargetsCmd.Flags().StringVar(&targetsDate, "date", "", "Select as of this date (default today)")
}

// --- edit / record ---

var editCmd = &cobra.Command{
	Use:   "edit [agent] [row] [column] [value]",
	Short: "Edit a cell of an agent's TODAY_CALL sheet and record the attempt",
	Long: "Writes value into the given cell of TODAY_CALL_<agent> and submits the edit " +
		"to the outcome queue, which records the attempt once status is filled in.",
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		agent, column, value := args[0], args[2], args[3]
		rowNum, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid row number: %s", args[1])
		}

		name := database.TargetSheetName(agent)
		sheet, err := db.GetTable(name)
		if err != nil {
			return fail("reading target sheet", err)
		}
		if sheet == nil {
			return fmt.Errorf("no target sheet for %s; run 'leadflow targets' first", agent)
		}
		col := sheet.Col(column)
		if col < 0 {
			return fmt.Errorf("unknown column %q (columns: %s)", column, strings.Join(sheet.Header, ", "))
		}
		row, ok := sheet.Row(rowNum)
		if !ok {
			return fmt.Errorf("row %d of %s not found", rowNum, name)
		}
		prior := sheet.Value(row, column)

		if err := db.SetCell(name, rowNum, col+1, value); err != nil {
			return fail("writing cell", err)
		}

		recorder := outcome.NewRecorder(db, logger)
		queue := outcome.NewQueue(outcome.NewEditHandler(db, recorder, logger), cfg.Recorder.QueueSize, logger)
		defer queue.Close()

		results, err := queue.Submit(cmd.Context(), outcome.EditEvent{
			Sheet:      name,
			Row:        rowNum,
			Column:     column,
			PriorValue: prior,
		})
		if err != nil {
			return err
		}
		res := <-results
		switch {
		case errors.Is(res.Err, outcome.ErrIgnored):
			fmt.Printf("Saved %s=%q on row %d (%v)\n", column, value, rowNum, res.Err)
		case res.Err != nil:
			return fail("recording edit", res.Err)
		default:
			fmt.Printf("Recorded call %s from row %d\n", res.CallID, rowNum)
		}
		return nil
	},
}

var recordIn outcome.Input

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one outreach attempt directly",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		callID, err := outcome.NewRecorder(db, logger).Record(cmd.Context(), recordIn)
		if err != nil {
			return fmt.Errorf("recording outreach: %w (see 'leadflow logs')", err)
		}
		c, err := db.GetCustomer(recordIn.CustomerID)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded call %s; %s is now %s\n", callID, c.ID, c.Status)
		return nil
	},
}

func init() {
	f := recordCmd.Flags()
	f.StringVar(&recordIn.Agent, "agent", "", "Agent who made the call")
	f.StringVar(&recordIn.CustomerID, "customer", "", "Customer ID")
	f.StringVar(&recordIn.Outcome, "outcome", "", "Outcome code")
	f.StringVar(&recordIn.Rank, "rank", "", "Note rank")
	f.StringVar(&recordIn.NextActionDate, "next", "", "Next action date")
	f.StringVar(&recordIn.Note, "note", "", "Free-form memo")
	f.StringVar(&recordIn.AppointmentTime, "appointment", "", "Meeting date and time")
	_ = recordCmd.MarkFlagRequired("customer")
	_ = recordCmd.MarkFlagRequired("outcome")
}

// --- appointment ---

var appointmentCmd = &cobra.Command{
	Use:   "appointment",
	Short: "Manage appointments",
}

var (
	attendance string
	deal       string
	dealAmount float64
)

var appointmentResolveCmd = &cobra.Command{
	Use:   "resolve [appointment-id]",
	Short: "Record attendance and deal outcome of an appointment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if attendance == "" && deal == "" && !cmd.Flags().Changed("amount") {
			return fmt.Errorf("nothing to resolve: pass --attendance, --deal or --amount")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var amount *float64
		if cmd.Flags().Changed("amount") {
			amount = &dealAmount
		}
		if err := db.ResolveAppointment(args[0], attendance, deal, amount); err != nil {
			return fail("resolving appointment", err)
		}
		a, err := db.GetAppointment(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Appointment %s: attendance=%q deal=%q\n", a.ID, a.AttendanceStatus, a.DealStatus)
		return nil
	},
}

func init() {
	appointmentResolveCmd.Flags().StringVar(&attendance, "attendance", "", "Attendance status (e.g. attended)")
	appointmentResolveCmd.Flags().StringVar(&deal, "deal", "", "Deal status (e.g. deal)")
	appointmentResolveCmd.Flags().Float64Var(&dealAmount, "amount", 0, "Deal amount")
	appointmentCmd.AddCommand(appointmentResolveCmd)
}

// --- kpi ---

var kpiDate string

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Recompute KPI tables",
}

var kpiDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Recompute kpi_daily (date x agent x source type)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKPI(cmd.Context(), func(a *kpi.Aggregator, asOf time.Time) (int, error) {
			rows, err := a.Daily(cmd.Context(), asOf)
			return len(rows), err
		}, kpi.TableDaily)
	},
}

var kpiListsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Recompute kpi_by_list (source type x source detail)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKPI(cmd.Context(), func(a *kpi.Aggregator, asOf time.Time) (int, error) {
			rows, err := a.ByList(cmd.Context(), asOf)
			return len(rows), err
		}, kpi.TableByList)
	},
}

func runKPI(ctx context.Context, job func(*kpi.Aggregator, time.Time) (int, error), table string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	asOf, err := asOfFlag(db, kpiDate)
	if err != nil {
		return err
	}
	n, err := job(kpi.NewAggregator(db, cfg, logger), asOf)
	if err != nil {
		return fail("computing "+table, err)
	}
	fmt.Printf("Wrote %d row(s) to %s as of %s\n", n, table, database.FormatDate(asOf))
	return nil
}

func init() {
	kpiCmd.PersistentFlags().StringVar(&kpiDate, "date", "", "Aggregate as of this date (default today)")
	kpiCmd.AddCommand(kpiDailyCmd)
	kpiCmd.AddCommand(kpiListsCmd)
}

// --- run ---

var (
	dryRun  bool
	runDate string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily batch: ingest -> targets -> kpi daily -> kpi lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		asOf, err := asOfFlag(db, runDate)
		if err != nil {
			return err
		}

		pipe := pipeline.New(cfg, db, logger)
		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(cmd.Context(), asOf)
		} else {
			result = pipe.Run(cmd.Context(), asOf)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("run %s had failing steps; see 'leadflow logs'", result.RunID)
		}
		if !dryRun {
			fmt.Println("\nRun complete! Run 'leadflow serve' to view the report.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without writing")
	runCmd.Flags().StringVar(&runDate, "date", "", "Run as of this date (default today)")
}

// --- serve / watch ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, port, cfg.Server.AllowedOrigins, logger)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run ingest whenever a local CSV feed changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		intakePipe := intake.NewPipeline(cfg.Feeds, db, logger)
		onChange := func(ctx context.Context) error {
			result, err := intakePipe.Run(ctx)
			if err != nil {
				return err
			}
			printIngest(result)
			return nil
		}

		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		w, err := intake.NewWatcher(cfg.Feeds, debounce, onChange, logger)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Watching %d feed file(s); press Ctrl+C to stop\n", w.Files())
		return w.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on (overrides config)")
}
