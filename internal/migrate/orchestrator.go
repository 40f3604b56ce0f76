// Package migrate runs one dashboard synchronization from a source instance
// to a target instance: list both sides, resolve duplicates by title, fetch
// only the details that will be written, remap owners, then write with
// bounded concurrency.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lherron/cfgsync/internal/bulk"
	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/resolve"
	"github.com/lherron/cfgsync/internal/resource"
	"github.com/lherron/cfgsync/internal/users"
)

// DefaultConcurrency bounds in-flight fetches and writes when unset
const DefaultConcurrency = 10

// Options configures a run
type Options struct {
	Source Source
	Target Target
	Policy resolve.Policy
	// Prompter answers duplicates under the ask policy. Nil skips them.
	Prompter       resolve.Prompter
	Concurrency    int
	DefaultOwnerID string
	// VerifyWrites reads every created dashboard back
	VerifyWrites bool
	// SaveSourcePath, when set, receives every source detail, including
	// the ones the run skips
	SaveSourcePath string
	Logger         zerolog.Logger
}

// Orchestrator executes runs with fixed options
type Orchestrator struct {
	opts Options
	log  zerolog.Logger
}

// New validates opts and fills defaults
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil || opts.Target == nil {
		return nil, errors.New("source and target are required")
	}
	if opts.Policy == "" {
		opts.Policy = resolve.PolicyAsk
	}
	if _, err := resolve.ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{opts: opts, log: opts.Logger}, nil
}

// task carries one fetched item through preparation and writing
type task struct {
	item    *resolve.Item
	detail  *resource.Resource
	payload *resource.Resource
}

// Run performs one synchronization. The returned summary is always non-nil
// and accounts for every source item that reached an outcome. A non-nil
// error means the run stopped early: authentication failure, listing
// failure, operator abort, or cancellation.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	t := newTally(string(o.opts.Policy))
	log := o.log.With().Str("run_id", t.s.RunID).Logger()
	start := time.Now()

	sourceList, targetList, err := o.list(ctx)
	if err != nil {
		return t.finish(), err
	}
	t.setSource(len(sourceList))

	plan := resolve.Resolve(sourceList, targetList, o.opts.Policy)
	for _, it := range plan.Items {
		if it.Decision.Action == resolve.ActionSkip {
			t.record(OutcomeSkipped)
		}
	}
	queue := plan.FetchQueue()
	log.Info().
		Int("source", len(sourceList)).
		Int("target", len(targetList)).
		Int("create", plan.Count(resolve.ActionCreate)).
		Int("update", plan.Count(resolve.ActionUpdate)).
		Int("ask", plan.Count(resolve.ActionAsk)).
		Int("skip", plan.Count(resolve.ActionSkip)).
		Msg("Resolved duplicates")

	var archive []*resolve.Item
	if o.opts.SaveSourcePath != "" {
		archive = plan.ArchiveQueue()
	}

	tasks, archived, dir, err := o.fetch(ctx, queue, archive, t, log)
	if err != nil {
		return t.finish(), err
	}

	if o.opts.SaveSourcePath != "" {
		o.saveSource(plan, tasks, archived, t, log)
	}

	writes, err := o.prepare(ctx, tasks, dir, t, log)
	if err != nil {
		return t.finish(), err
	}

	err = o.write(ctx, writes, t, log)
	summary := t.finish()
	log.Info().
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("detail_fetches", summary.DetailFetches).
		Dur("elapsed", time.Since(start)).
		Msg("Sync finished")
	return summary, err
}

// list fetches both listings concurrently
func (o *Orchestrator) list(ctx context.Context) (source, target []resource.Summary, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if source, err = o.opts.Source.ListDashboards(gctx); err != nil {
			return fmt.Errorf("list source dashboards: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if target, err = o.opts.Target.ListDashboards(gctx); err != nil {
			return fmt.Errorf("list target dashboards: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// fetch retrieves the queued details while the user directories load. Items
// whose fetch fails are recorded and dropped from the returned tasks. Archive
// items are fetched in the same phase only so the saved source file is
// complete; their outcome is already settled and a failed fetch is a warning.
func (o *Orchestrator) fetch(ctx context.Context, queue, archive []*resolve.Item, t *tally, log zerolog.Logger) ([]*task, map[*resolve.Item]*resource.Resource, *users.Directory, error) {
	if len(queue)+len(archive) == 0 {
		return nil, nil, nil, nil
	}

	details := make([]*resource.Resource, len(queue)+len(archive))
	var dir *users.Directory

	g, gctx := errgroup.WithContext(ctx)
	if len(queue) > 0 {
		g.Go(func() error {
			d, warnings, err := users.Load(gctx, o.opts.Source, o.opts.Target, o.opts.DefaultOwnerID)
			if err != nil {
				return fmt.Errorf("load users: %w", err)
			}
			for _, w := range warnings {
				t.warn(w.Error())
				log.Warn().Err(w).Msg("User directory degraded")
			}
			dir = d
			return nil
		})
	}
	g.Go(func() error {
		op := &bulk.Operation{Jobs: o.opts.Concurrency}
		return op.Execute(gctx, len(details), func(ctx context.Context, i int) error {
			writing := i < len(queue)
			var item resource.Summary
			if writing {
				item = queue[i].Source
			} else {
				item = archive[i-len(queue)].Source
			}
			d, err := o.opts.Source.GetDashboard(ctx, item.ID)
			t.fetched()
			if err != nil {
				err = fmt.Errorf("fetch source dashboard: %w", err)
				if writing || client.IsFatal(err) {
					return o.itemFailed(ctx, t, log, item, err)
				}
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("dashboard", item.String()).Msg("Could not fetch dashboard for saved source")
				}
				return nil
			}
			details[i] = d
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	tasks := make([]*task, 0, len(queue))
	for i, it := range queue {
		if details[i] != nil {
			tasks = append(tasks, &task{item: it, detail: details[i]})
		}
	}
	archived := make(map[*resolve.Item]*resource.Resource, len(archive))
	for i, it := range archive {
		if d := details[len(queue)+i]; d != nil {
			archived[it] = d
		}
	}
	return tasks, archived, dir, nil
}

// saveSource writes every fetched source detail in listing order. Items whose
// detail could not be fetched are left out and counted in a warning.
func (o *Orchestrator) saveSource(plan *resolve.Plan, tasks []*task, archived map[*resolve.Item]*resource.Resource, t *tally, log zerolog.Logger) {
	byItem := make(map[*resolve.Item]*resource.Resource, len(tasks)+len(archived))
	for _, tk := range tasks {
		byItem[tk.item] = tk.detail
	}
	for it, d := range archived {
		byItem[it] = d
	}

	saved := make([]*resource.Resource, 0, len(plan.Items))
	for _, it := range plan.Items {
		if d, ok := byItem[it]; ok {
			saved = append(saved, d)
		}
	}

	if err := SaveSource(o.opts.SaveSourcePath, saved); err != nil {
		t.warn(err.Error())
		log.Warn().Err(err).Msg("Could not save source dashboards")
		return
	}
	if missing := len(plan.Items) - len(saved); missing > 0 {
		t.warn(fmt.Sprintf("saved source is missing %d of %d dashboards", missing, len(plan.Items)))
	}
	log.Info().Int("dashboards", len(saved)).Str("path", o.opts.SaveSourcePath).Msg("Saved source dashboards")
}

// prepare builds payloads and settles ask decisions. The returned tasks are
// the ones to write.
func (o *Orchestrator) prepare(ctx context.Context, tasks []*task, dir *users.Directory, t *tally, log zerolog.Logger) ([]*task, error) {
	ready := make([]*task, 0, len(tasks))
	var pending []resolve.Pending
	for _, tk := range tasks {
		payload, err := Prepare(tk.detail, dir)
		if err != nil {
			t.fail(tk.item.Source, err)
			log.Warn().Err(err).Str("dashboard", tk.item.Source.String()).Msg("Dashboard rejected")
			continue
		}
		tk.payload = payload
		ready = append(ready, tk)
		if tk.item.Decision.Action == resolve.ActionAsk {
			pending = append(pending, resolve.Pending{Item: tk.item, Incoming: payload})
		}
	}

	if len(pending) > 0 {
		if o.opts.Prompter == nil {
			msg := fmt.Sprintf("%d duplicate(s) skipped: no interactive prompt available", len(pending))
			t.warn(msg)
			log.Warn().Int("duplicates", len(pending)).Msg("No prompt available, skipping duplicates")
			for _, p := range pending {
				p.Item.Decision.Action = resolve.ActionSkip
			}
		} else if err := resolve.ResolveAsk(ctx, pending, o.opts.Prompter); err != nil {
			return nil, err
		}
	}

	writes := ready[:0]
	for _, tk := range ready {
		switch tk.item.Decision.Action {
		case resolve.ActionCreate, resolve.ActionUpdate:
			writes = append(writes, tk)
		default:
			t.record(OutcomeSkipped)
		}
	}
	return writes, nil
}

func (o *Orchestrator) write(ctx context.Context, writes []*task, t *tally, log zerolog.Logger) error {
	op := &bulk.Operation{Jobs: o.opts.Concurrency}
	return op.Execute(ctx, len(writes), func(ctx context.Context, i int) error {
		tk := writes[i]
		var (
			outcome Outcome
			err     error
		)
		if tk.item.Decision.Action == resolve.ActionUpdate {
			outcome, err = o.update(ctx, tk.item.Decision.ExistingID, tk.payload)
		} else {
			outcome, err = o.create(ctx, tk.payload, log)
		}
		if err != nil {
			return o.itemFailed(ctx, t, log, tk.item.Source, err)
		}
		t.record(outcome)
		log.Debug().Str("dashboard", tk.item.Source.String()).Str("outcome", string(outcome)).Msg("Dashboard written")
		return nil
	})
}

func (o *Orchestrator) create(ctx context.Context, payload *resource.Resource, log zerolog.Logger) (Outcome, error) {
	created, err := o.opts.Target.CreateDashboard(ctx, payload)
	if isConflict(err) {
		return o.conflict(ctx, payload, log)
	}
	if err != nil {
		return "", fmt.Errorf("create dashboard: %w", err)
	}

	if o.opts.VerifyWrites {
		id := payload.ID
		if created != nil && created.ID != "" {
			id = created.ID
		}
		if err := o.verify(ctx, id, log); err != nil {
			return "", err
		}
	}
	return OutcomeCreated, nil
}

// conflict handles a create the target refused because the title appeared
// after the run started
func (o *Orchestrator) conflict(ctx context.Context, payload *resource.Resource, log zerolog.Logger) (Outcome, error) {
	if o.opts.Policy != resolve.PolicyUpdate {
		log.Info().Str("title", payload.Title).Msg("Dashboard appeared in target during run, skipping")
		return OutcomeSkipped, nil
	}

	current, err := o.opts.Target.ListDashboards(ctx)
	if err != nil {
		return "", fmt.Errorf("relist target after conflict: %w", err)
	}
	key := resource.NormalizeTitle(payload.Title)
	for _, s := range current {
		if s.Key() == key {
			return o.update(ctx, s.ID, payload)
		}
	}
	return "", fmt.Errorf("create dashboard: target reported a conflict for %q but no dashboard has that title", payload.Title)
}

func (o *Orchestrator) update(ctx context.Context, existingID string, payload *resource.Resource) (Outcome, error) {
	body := payload.Clone()
	body.ID = existingID
	if _, err := o.opts.Target.UpdateDashboard(ctx, existingID, body); err != nil {
		return "", fmt.Errorf("update dashboard %s: %w", existingID, err)
	}
	return OutcomeUpdated, nil
}

// verify reads a created dashboard back. A read failure is only logged; a
// dashboard that comes back without its title or widgets fails the item.
func (o *Orchestrator) verify(ctx context.Context, id string, log zerolog.Logger) error {
	stored, err := o.opts.Target.GetDashboard(ctx, id)
	if err != nil {
		if client.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("id", id).Msg("Could not verify created dashboard")
		return nil
	}
	if stored == nil || resource.NormalizeTitle(stored.Title) == "" {
		return fmt.Errorf("%w: %s came back without a title", ErrNotPersisted, id)
	}
	if widgets, err := stored.Widgets(); err != nil || len(widgets) == 0 {
		return fmt.Errorf("%w: %s came back without widgets", ErrNotPersisted, id)
	}
	return nil
}

// itemFailed records err against item unless it ends the run. Fatal errors
// are returned so bulk cancels the siblings; items interrupted by
// cancellation are not recorded.
func (o *Orchestrator) itemFailed(ctx context.Context, t *tally, log zerolog.Logger, item resource.Summary, err error) error {
	if client.IsFatal(err) {
		log.Error().Err(err).Msg("Authentication failed, stopping run")
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	t.fail(item, err)
	log.Warn().Err(err).Str("dashboard", item.String()).Msg("Dashboard failed")
	return nil
}

func isConflict(err error) bool {
	var ce *client.Error
	return errors.As(err, &ce) && ce.Status == http.StatusConflict
}
