package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/intake"
	"github.com/TobiSchelling/leadflow/internal/kpi"
	"github.com/TobiSchelling/leadflow/internal/targeting"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Detail  string // markdown, optional
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	AsOf       time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the daily batch: ingest, generate targets, then both KPI jobs.
type Pipeline struct {
	cfg        *config.Config
	db         *database.DB
	intake     *intake.Pipeline
	selector   *targeting.Selector
	aggregator *kpi.Aggregator
	log        zerolog.Logger
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		intake:     intake.NewPipeline(cfg.Feeds, db, logger),
		selector:   targeting.NewSelector(db, cfg.Targeting.Statuses, logger),
		aggregator: kpi.NewAggregator(db, cfg, logger),
		log:        logger.With().Str("component", "pipeline").Logger(),
	}
}

// Intake returns the intake stage, for callers that configure its readers.
func (p *Pipeline) Intake() *intake.Pipeline {
	return p.intake
}

// Run executes all four steps and stores a markdown report of the run.
// An ingest failure stops the run; later steps run even if an earlier
// one failed.
func (p *Pipeline) Run(ctx context.Context, asOf time.Time) *Result {
	r := &Result{RunID: uuid.NewString(), AsOf: asOf, StartedAt: p.db.Now()}
	logger := p.log.With().Str("run_id", r.RunID).Logger()

	logger.Info().Msg("Step 1/4: Ingesting feeds...")
	step := p.runIngest(ctx)
	r.Steps = append(r.Steps, step)

	if step.Err == nil {
		logger.Info().Msg("Step 2/4: Generating target sheets...")
		r.Steps = append(r.Steps, p.runTargets(ctx, asOf))

		logger.Info().Msg("Step 3/4: Aggregating daily KPI...")
		r.Steps = append(r.Steps, p.runDaily(ctx, asOf))

		logger.Info().Msg("Step 4/4: Aggregating list KPI...")
		r.Steps = append(r.Steps, p.runByList(ctx, asOf))
	}

	r.FinishedAt = p.db.Now()
	report := &database.RunReport{
		RunID:          r.RunID,
		StartedAt:      database.FormatDateTime(r.StartedAt),
		FinishedAt:     database.FormatDateTime(r.FinishedAt),
		ReportMarkdown: RenderReport(r),
	}
	if err := p.db.InsertRunReport(report); err != nil {
		logger.Error().Stack().Err(err).Msg("Storing run report failed")
	}

	event := logger.Info()
	if r.Failed() {
		event = logger.Warn()
	}
	event.Int("steps", len(r.Steps)).Bool("failed", r.Failed()).Msg("Run finished")
	return r
}

// DryRun shows what would be done without writing anything.
func (p *Pipeline) DryRun(ctx context.Context, asOf time.Time) *Result {
	r := &Result{RunID: "dry-run", AsOf: asOf, StartedAt: p.db.Now()}

	checks := p.intake.Validate(ctx)
	reachable, rows := 0, 0
	for _, c := range checks {
		if c.OK() {
			reachable++
			rows += c.DataRows
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("[dry-run] %d of %d feeds readable, %d data rows", reachable, len(checks), rows),
	})

	agents, err := p.selector.Agents(p.cfg.Agents)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Targets", Err: err})
	} else {
		total := 0
		for _, agent := range agents {
			entries, _, err := p.selector.SelectTargets(ctx, agent, asOf)
			if err != nil {
				r.Steps = append(r.Steps, StepResult{Name: "Targets", Err: err})
				break
			}
			total += len(entries)
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Targets",
			Summary: fmt.Sprintf("[dry-run] Would write %d entries for %d agents", total, len(agents)),
		})
	}

	daily, err := p.aggregator.ComputeDaily(ctx, asOf)
	r.Steps = append(r.Steps, StepResult{
		Name:    "KPI daily",
		Summary: fmt.Sprintf("[dry-run] Would write %d daily rows", len(daily)),
		Err:     err,
	})

	lists, err := p.aggregator.ComputeByList(ctx, asOf)
	r.Steps = append(r.Steps, StepResult{
		Name:    "KPI lists",
		Summary: fmt.Sprintf("[dry-run] Would write %d list rows", len(lists)),
		Err:     err,
	})

	r.FinishedAt = p.db.Now()
	return r
}

func (p *Pipeline) runIngest(ctx context.Context) StepResult {
	result, err := p.intake.Run(ctx)
	if err != nil {
		return StepResult{Name: "Ingest", Err: err}
	}

	var b strings.Builder
	b.WriteString("| Feed | Processed | New | Updated | New sources | Skipped | Errors |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, f := range result.Feeds {
		if f.Err != nil {
			fmt.Fprintf(&b, "| %s | failed: %s | | | | | |\n", f.Name, escapeCell(f.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d | %d |\n",
			f.Name, f.Processed, f.NewCustomers, f.UpdatedCustomers, f.NewSources, f.Skipped, f.Errors)
	}

	t := result.Totals
	return StepResult{
		Name: "Ingest",
		Summary: fmt.Sprintf("Processed %d rows from %d feeds: %d new customers, %d updated, %d skipped, %d errors (%d feeds failed)",
			t.Processed, len(result.Feeds), t.NewCustomers, t.UpdatedCustomers, t.Skipped, t.Errors, result.FailedFeeds()),
		Detail: b.String(),
	}
}

func (p *Pipeline) runTargets(ctx context.Context, asOf time.Time) StepResult {
	agents, err := p.selector.Agents(p.cfg.Agents)
	if err != nil {
		return StepResult{Name: "Targets", Err: err}
	}
	sheets, err := p.selector.Generate(ctx, agents, asOf)
	if err != nil {
		return StepResult{Name: "Targets", Err: err}
	}

	var b strings.Builder
	b.WriteString("| Agent | Entries | Called today | Wrong status | Future next action |\n")
	b.WriteString("|---|---|---|---|---|\n")
	total := 0
	for _, s := range sheets {
		total += s.Entries
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n",
			s.Agent, s.Entries, s.Breakdown.AlreadyCalledToday, s.Breakdown.WrongStatus, s.Breakdown.FutureNextAction)
	}
	return StepResult{
		Name:    "Targets",
		Summary: fmt.Sprintf("Wrote %d entries to %d target sheets", total, len(sheets)),
		Detail:  b.String(),
	}
}

func (p *Pipeline) runDaily(ctx context.Context, asOf time.Time) StepResult {
	rows, err := p.aggregator.Daily(ctx, asOf)
	if err != nil {
		return StepResult{Name: "KPI daily", Err: err}
	}
	return StepResult{
		Name:    "KPI daily",
		Summary: fmt.Sprintf("Wrote %d rows over %d days", len(rows), p.cfg.KPI.DailyWindowDays),
	}
}

func (p *Pipeline) runByList(ctx context.Context, asOf time.Time) StepResult {
	rows, err := p.aggregator.ByList(ctx, asOf)
	if err != nil {
		return StepResult{Name: "KPI lists", Err: err}
	}
	return StepResult{
		Name:    "KPI lists",
		Summary: fmt.Sprintf("Wrote %d list rows", len(rows)),
	}
}
