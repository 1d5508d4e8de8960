// Package resolve matches free-text food queries against the external food
// database: ranked search, bounded-concurrency detail fetches, a background
// worker pool for whole action batches, and a remembered-override cache.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"voicelog"
	"voicelog/action"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// Match is a successful resolution: the chosen candidate with its fetched
// detail, plus the full candidate list so the user can pick an alternative.
type Match struct {
	Food       action.Food
	Candidate  action.Candidate
	Candidates []action.Candidate
	ByOverride bool
}

type Resolver struct {
	source            voicelog.FoodSource
	searchLimit       int
	detailConcurrency int
	overrides         *gocache.Cache
}

func NewResolver(source voicelog.FoodSource, cfg voicelog.ResolverConfig) *Resolver {
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = 18
	}
	conc := cfg.DetailConcurrency
	if conc <= 0 {
		conc = 3
	}
	return &Resolver{
		source:            source,
		searchLimit:       limit,
		detailConcurrency: conc,
		overrides:         gocache.New(gocache.NoExpiration, 0),
	}
}

// dataTypeRank orders candidates by source quality before relevance score.
func dataTypeRank(dt string) int {
	switch dt {
	case "Foundation":
		return 0
	case "SR Legacy":
		return 1
	case "Survey (FNDDS)":
		return 2
	case "Branded":
		return 3
	}
	return 4
}

// RememberOverride pins a query to an explicit user choice so the same
// free-text resolves identically next time.
func (r *Resolver) RememberOverride(query, externalID string) {
	r.overrides.Set(action.NormalizeLabel(query), externalID, gocache.NoExpiration)
}

// Override reports the pinned external id for a query, if any.
func (r *Resolver) Override(query string) (string, bool) {
	v, ok := r.overrides.Get(action.NormalizeLabel(query))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Resolve finds the best match for a free-text food query. It returns
// (nil, nil) when the search succeeds but no candidate yields usable detail;
// errors are reserved for the search call itself failing.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Match, error) {
	if id, ok := r.Override(query); ok {
		food, err := r.source.Detail(ctx, id)
		if err == nil && food != nil {
			slog.Info("RESOLVER: Override hit", "query", query, "external_id", id)
			return &Match{
				Food:       *food,
				Candidate:  action.Candidate{ExternalID: food.ExternalID, Description: food.Description, DataType: food.DataType},
				ByOverride: true,
			}, nil
		}
		// fall through to a normal search when the pinned id stops resolving
		slog.Warn("RESOLVER: Override detail failed, falling back to search", "query", query, "external_id", id, "error", err)
	}

	candidates, err := r.source.Search(ctx, query, r.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("food search for %q: %w", query, err)
	}
	if len(candidates) == 0 {
		slog.Info("RESOLVER: No candidates", "query", query)
		return nil, nil
	}

	ranked := make([]action.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := dataTypeRank(ranked[i].DataType), dataTypeRank(ranked[j].DataType)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].RankScore > ranked[j].RankScore
	})

	// Fetch detail for the top few in parallel, then take the first success
	// in rank order.
	top := r.detailConcurrency
	if top > len(ranked) {
		top = len(ranked)
	}
	details := make([]*action.Food, top)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.detailConcurrency)
	for i := 0; i < top; i++ {
		g.Go(func() error {
			food, derr := r.source.Detail(gctx, ranked[i].ExternalID)
			if derr != nil {
				slog.Warn("RESOLVER: Detail fetch failed", "external_id", ranked[i].ExternalID, "error", derr)
				return nil // per-candidate failures are not batch failures
			}
			details[i] = food
			return nil
		})
	}
	_ = g.Wait()

	for i := 0; i < top; i++ {
		if details[i] != nil {
			return &Match{Food: *details[i], Candidate: ranked[i], Candidates: ranked}, nil
		}
	}

	// Remainder sequentially; first success wins.
	for _, c := range ranked[top:] {
		food, derr := r.source.Detail(ctx, c.ExternalID)
		if derr != nil || food == nil {
			continue
		}
		return &Match{Food: *food, Candidate: c, Candidates: ranked}, nil
	}

	slog.Info("RESOLVER: No candidate yielded detail", "query", query, "candidates", len(ranked))
	return nil, nil
}

// SelectCandidate applies an explicit user pick from an item's candidate
// list: detail is fetched for the chosen candidate, the item is rewritten to
// the pick, and the query is pinned so the same free-text resolves to it on
// later turns.
func (r *Resolver) SelectCandidate(ctx context.Context, actions []action.Action, actionID string, itemIdx int, pick action.Candidate) ([]action.Action, error) {
	food, err := r.source.Detail(ctx, pick.ExternalID)
	if err != nil {
		return actions, fmt.Errorf("detail for picked candidate %s: %w", pick.ExternalID, err)
	}
	if food == nil {
		return actions, fmt.Errorf("picked candidate %s has no usable record", pick.ExternalID)
	}

	var query string
	updated, ok := action.UpdateMealItem(actions, actionID, itemIdx, func(it action.MealItem) action.MealItem {
		query = it.FoodQuery
		if query == "" {
			query = it.Label
		}
		f := *food
		c := pick
		it.IsResolving = false
		it.MatchedFood = &f
		it.SelectedCandidate = &c
		it.MatchedByUser = true
		it.ResolveError = ""
		it.Servings = action.DeriveServings(it)
		return it
	})
	if !ok {
		return actions, fmt.Errorf("no meal item at %s[%d]", actionID, itemIdx)
	}

	if query != "" {
		r.RememberOverride(query, pick.ExternalID)
	}
	slog.Info("RESOLVER: User pick applied", "action_id", actionID, "item", itemIdx, "external_id", pick.ExternalID)
	return updated, nil
}

// ApplyMatch folds a resolution result into the item at the given address
// using a structural-copy update. Stale addresses (action replaced since the
// work was queued) are ignored.
func ApplyMatch(actions []action.Action, actionID string, itemIdx int, match *Match, resolveErr error) []action.Action {
	updated, _ := action.UpdateMealItem(actions, actionID, itemIdx, func(it action.MealItem) action.MealItem {
		it.IsResolving = false
		switch {
		case resolveErr != nil:
			it.ResolveError = resolveErr.Error()
		case match == nil:
			it.ResolveError = "no match found"
		default:
			f := match.Food
			it.MatchedFood = &f
			c := match.Candidate
			it.SelectedCandidate = &c
			it.Candidates = append([]action.Candidate(nil), match.Candidates...)
			it.MatchedByUser = match.ByOverride
			it.ResolveError = ""
			it.Servings = action.DeriveServings(it)
		}
		return it
	})
	return updated
}

// markResolving flags the addressed items before their work is queued.
func markResolving(actions []action.Action, items []action.PendingItem) []action.Action {
	out := actions
	for _, p := range items {
		out, _ = action.UpdateMealItem(out, p.ActionID, p.ItemIndex, func(it action.MealItem) action.MealItem {
			it.IsResolving = true
			return it
		})
	}
	return out
}
