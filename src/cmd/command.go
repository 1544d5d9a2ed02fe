package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VectorBits/pocshift/src/internal/config"
	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/matching"
	"github.com/VectorBits/pocshift/src/internal/pipeline"
	"github.com/VectorBits/pocshift/src/internal/report"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/synth"
	"github.com/VectorBits/pocshift/src/internal/ui"
)

// app holds what every command shares.
type app struct {
	cfg      *config.AppConfig
	repo     *corpus.GormRepository
	resolver *explorer.CachedResolver
	engine   *matching.Engine
	closers  []func()
}

func newApp(cli *CLIConfig) (*app, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cli.ConfigPath != "" {
		cfg, err = config.Load(cli.ConfigPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}
	if cli.Proxy != "" {
		cfg.Proxy = cli.Proxy
	}
	if cli.TraceDir != "" {
		cfg.Harness.TraceDir = cli.TraceDir
	}
	if cli.Workers > 0 {
		cfg.Pipeline.Workers = cli.Workers
	}

	if err := logger.InitLogger(cfg.LogDir); err != nil {
		fmt.Printf(ui.Yellow+"⚠️  Warning: Failed to init logger: %v"+ui.Reset+"\n", err)
	}
	a := &app{cfg: cfg, closers: []func(){logger.Close}}

	a.repo, err = config.OpenRepository(cfg.Database)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	a.resolver, _, err = cfg.Explorers()
	if err != nil {
		a.close()
		return nil, err
	}
	tracker := corpus.NewTracker(a.repo, cfg.PollInterval()).WithLease(cfg.Lease())
	a.engine = matching.NewEngine(a.repo, a.resolver, tracker)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// pipeline wires the forge harness and the on-chain prober. Without any
// reachable RPC the classifier runs without pair and read discovery.
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	h, err := a.cfg.HarnessRunner()
	if err != nil {
		return nil, err
	}
	var classifier *roles.Classifier
	prober, managers, err := a.cfg.Prober()
	if managers != nil {
		a.closers = append(a.closers, managers.Close)
	}
	if err != nil {
		logger.Warn("%v, read and pair roles disabled", err)
		classifier = roles.NewClassifier(nil, a.cfg.Tables())
	} else {
		classifier = roles.NewClassifier(prober, a.cfg.Tables())
	}
	store := report.NewArtifactStore(a.cfg.Pipeline.OutputDir)
	return pipeline.New(a.repo, h, a.resolver, classifier, store, pipeline.Config{Workers: a.cfg.Pipeline.Workers}), nil
}

func ExecuteIngest(ctx context.Context, a *app, cli *CLIConfig) error {
	ing := corpus.NewIngester(a.repo, a.resolver)
	id := corpus.Identity{Address: cli.Address, Chain: cli.Chain}
	res, err := ingestPath(ctx, ing, cli.File, id)
	if err != nil {
		return err
	}
	ui.LogSuccess("%s: %d subcontracts, %d functions, %d statements (new: %v)",
		res.Key, len(res.Contracts), len(res.Functions), len(res.Statements), res.Created)
	return nil
}

func ingestPath(ctx context.Context, ing *corpus.Ingester, path string, id corpus.Identity) (*corpus.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ing.IngestDirectory(ctx, path, id)
	}
	if id.Address == "" {
		if id, err = corpus.IdentityFromPath(path); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ing.IngestSource(ctx, string(data), id)
}

func ExecuteIngestDir(ctx context.Context, a *app, cli *CLIConfig) error {
	entries, err := os.ReadDir(cli.Dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cli.Dir, err)
	}
	ing := corpus.NewIngester(a.repo, a.resolver)
	start := time.Now()
	pb := ui.NewProgressBar(len(entries), "📥 ingest")
	created, failed := 0, 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id, err := corpus.IdentityFromPath(e.Name())
		if err != nil {
			pb.Done(false)
			failed++
			continue
		}
		res, err := ingestPath(ctx, ing, filepath.Join(cli.Dir, e.Name()), id)
		if err != nil {
			logger.Warn("ingest %s: %v", e.Name(), err)
			pb.Done(false)
			failed++
			continue
		}
		if res.Created {
			created++
		}
		pb.Done(true)
	}
	pb.Finish()
	ui.PrintStats("Ingestion", len(entries), created, failed, 0, time.Since(start))
	return nil
}

func ExecutePoC(ctx context.Context, a *app, cli *CLIConfig) error {
	p, err := a.pipeline()
	if err != nil {
		return err
	}
	triage, err := pipeline.LoadTriage(cli.Triage)
	if err != nil {
		return err
	}
	inputs, err := pipeline.LoadInputs(cli.Dir, triage)
	if err != nil {
		return err
	}
	start := time.Now()
	stop := ui.StartSpinner(fmt.Sprintf("migrating %d PoCs with %d workers", len(inputs), a.cfg.Pipeline.Workers))
	batch, err := p.IngestBatch(ctx, inputs)
	close(stop)
	if err != nil {
		return err
	}

	rep := report.NewReport("poc")
	for _, o := range batch.Outcomes {
		if o.Err != nil {
			rep.AddPoC(report.PoCResult{FileName: o.FileName, Error: o.Err.Error()})
			continue
		}
		rep.AddPoC(o.Record.Summary())
	}

	sweep, err := a.engine.SweepPoCs(ctx)
	if err != nil {
		return err
	}
	for _, c := range sweep.Candidates {
		ui.LogCandidate(c.Address, c.Chain, c.PoCFile, false)
		rep.AddCandidate(candidateResult(c))
	}
	ui.PrintStats("Migration", len(inputs), batch.Migrated(), len(batch.Failed()), len(sweep.Candidates), time.Since(start))
	return writeReport(a, rep)
}

func ExecuteMatch(ctx context.Context, a *app, cli *CLIConfig) error {
	q := matching.Query{PoCHash: cli.Hash}
	if cli.File != "" {
		data, err := os.ReadFile(cli.File)
		if err != nil {
			return err
		}
		q = matching.Query{Fragment: string(data)}
	}
	cands, err := a.engine.FindCandidates(ctx, q)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		ui.LogInfo("no candidates")
		return nil
	}
	for _, c := range cands {
		ui.LogCandidate(c.Address, c.Chain, c.PoCFile, c.Status == corpus.StatusValidated)
		if cli.Verbose {
			for role, fns := range c.Rationale {
				fmt.Printf("    %s: %s\n", role, strings.Join(fns, ", "))
			}
		}
	}
	return nil
}

func ExecuteSweep(ctx context.Context, a *app, cli *CLIConfig) error {
	if cli.Unlock {
		cleared, err := a.engine.Unlock(ctx)
		if err != nil {
			return err
		}
		if cleared {
			ui.LogSuccess("matching_running flag cleared")
		} else {
			ui.LogInfo("matching_running flag was not set")
		}
		return nil
	}
	start := time.Now()
	contracts, err := a.engine.SweepContracts(ctx)
	if err != nil {
		return err
	}
	pocs, err := a.engine.SweepPoCs(ctx)
	if err != nil {
		return err
	}
	found := append(contracts.Candidates, pocs.Candidates...)
	for _, c := range found {
		ui.LogCandidate(c.Address, c.Chain, c.PoCFile, false)
	}
	if cli.Validate && len(found) > 0 {
		p, err := a.pipeline()
		if err != nil {
			return err
		}
		for _, c := range found {
			v, err := p.ValidateCandidate(ctx, c)
			if err != nil {
				logger.Warn("validate %s: %v", c.Key(), err)
				continue
			}
			if v.Passed {
				ui.LogCandidate(c.Address, c.Chain, c.PoCFile, true)
			}
		}
	}
	ui.PrintStats("Sweep", contracts.Contracts, pocs.PoCs, 0, len(found), time.Since(start))
	return nil
}

func ExecuteInstantiate(ctx context.Context, a *app, cli *CLIConfig) error {
	rec, err := pipeline.LoadRecord(ctx, a.repo, cli.Hash)
	if err != nil {
		return err
	}
	block := cli.Block
	if block == 0 {
		block = rec.BlockNumber
	}
	src := synth.Instantiate(rec.MigratableTemplate, cli.Address, cli.Chain, block)
	if cli.Output == "" {
		fmt.Println(src)
		return nil
	}
	if err := os.WriteFile(cli.Output, []byte(src), 0644); err != nil {
		return err
	}
	ui.LogSuccess("wrote %s", cli.Output)
	return nil
}

func ExecuteValidate(ctx context.Context, a *app, cli *CLIConfig) error {
	p, err := a.pipeline()
	if err != nil {
		return err
	}
	vals, err := p.ValidateAll(ctx, a.engine, cli.Hash)
	if err != nil {
		return err
	}
	passed := 0
	for _, v := range vals {
		if v.Passed {
			passed++
			ui.LogCandidate(v.Candidate.Address, v.Candidate.Chain, v.Candidate.PoCFile, true)
		}
	}
	ui.LogInfo("%d of %d candidates reproduced", passed, len(vals))
	return nil
}

func ExecuteReport(ctx context.Context, a *app, cli *CLIConfig) error {
	rec, err := pipeline.LoadRecord(ctx, a.repo, cli.Hash)
	if err != nil {
		return err
	}
	cands, err := a.engine.Candidates(ctx, cli.Hash)
	if err != nil {
		return err
	}
	rep := report.NewReport("report")
	rep.AddPoC(rec.Summary())
	for _, c := range cands {
		rep.AddCandidate(candidateResult(c))
	}
	if cli.Output != "" {
		a.cfg.Pipeline.ReportDir = cli.Output
	}
	return writeReport(a, rep)
}

func candidateResult(c *matching.Candidate) report.CandidateResult {
	return report.CandidateResult{
		Address:   c.Address,
		Chain:     c.Chain,
		PoCFile:   c.PoCFile,
		Rationale: c.Rationale,
		Status:    string(c.Status),
	}
}

func writeReport(a *app, rep *report.Report) error {
	r := report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(a.cfg.Pipeline.ReportDir))
	path, err := r.GenerateAndSave(rep)
	if err != nil {
		return err
	}
	ui.LogSuccess("report saved to %s", path)
	return nil
}

func Execute(ctx context.Context, cli *CLIConfig) error {
	a, err := newApp(cli)
	if err != nil {
		return err
	}
	defer a.close()

	if cli.Verbose {
		fmt.Printf(ui.Gray+"Running %s with config: %+v"+ui.Reset+"\n", cli.Command, cli)
	}

	switch cli.Command {
	case "ingest":
		return ExecuteIngest(ctx, a, cli)
	case "ingest-dir":
		return ExecuteIngestDir(ctx, a, cli)
	case "poc":
		return ExecutePoC(ctx, a, cli)
	case "match":
		return ExecuteMatch(ctx, a, cli)
	case "sweep":
		return ExecuteSweep(ctx, a, cli)
	case "instantiate":
		return ExecuteInstantiate(ctx, a, cli)
	case "validate":
		return ExecuteValidate(ctx, a, cli)
	case "report":
		return ExecuteReport(ctx, a, cli)
	default:
		return errors.New("unknown command: " + cli.Command)
	}
}
