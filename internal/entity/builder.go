package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plansight/enroll-cli/internal/crosswalk"
	"github.com/plansight/enroll-cli/internal/model"
)

// EarliestProgramYear is the first year the program published plan
// data. Chains never walk past it.
const EarliestProgramYear = 2006

const defaultConcurrency = 8

// Builder constructs entity identity chains by walking each current
// plan backward through the crosswalks.
type Builder struct {
	Index *Index
	// EarliestYear is the walk floor, EarliestProgramYear when zero.
	EarliestYear int
	Concurrency  int
}

// Build resolves every plan identity observed in the latest year into
// an entity with its full backward identity chain. Entities are
// returned sorted by current identity.
func (b *Builder) Build(ctx context.Context) ([]model.Entity, error) {
	log := zap.L().With(zap.String("component", "entity"))

	latest, ok := b.Index.LatestYear()
	if !ok {
		return nil, eris.New("entity: no plan identities observed")
	}
	floor := b.EarliestYear
	if floor == 0 {
		floor = EarliestProgramYear
	}
	limit := b.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	keys := b.Index.IdentitiesIn(latest)
	entities := make([]model.Entity, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			entities[i] = b.walk(latest, floor, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "entity: build chains")
	}

	var crosswalked int
	for _, e := range entities {
		if e.CrosswalkLinkCount > 0 {
			crosswalked++
		}
	}
	log.Info("entity chains built",
		zap.Int("entities", len(entities)),
		zap.Int("latest_year", latest),
		zap.Int("with_crosswalk_links", crosswalked))
	return entities, nil
}

// walk traces one plan identity backward from the latest year until
// the chain reaches the floor year or the plan's first appearance.
func (b *Builder) walk(latest, floor int, key crosswalk.Key) model.Entity {
	chain := []model.ChainLink{{
		Year:       latest,
		ContractID: key.ContractID,
		PlanID:     key.PlanID,
		Source:     model.LinkCurrent,
		Confidence: model.LinkCurrent.Confidence(),
	}}

	cur := key
	for y := latest; y > floor; y-- {
		var link model.ChainLink
		switch {
		case !b.Index.HasTable(y):
			// No crosswalk published for this transition. If the same
			// identity shows up the year before, carry it across with
			// reduced confidence; otherwise the trail ends here.
			if !b.Index.ObservedIn(y-1, cur.ContractID, cur.PlanID) {
				return finish(key, chain)
			}
			link = model.ChainLink{
				Year:       y - 1,
				ContractID: cur.ContractID,
				PlanID:     cur.PlanID,
				Source:     model.LinkNoCrosswalk,
				Confidence: model.LinkNoCrosswalk.Confidence(),
			}
		default:
			m, ok := b.Index.Lookup(y, cur.ContractID, cur.PlanID)
			if ok && m.PrevContractID != "" {
				prevPlan := m.PrevPlanID
				if prevPlan == "" {
					// Contract renumberings are often published without a
					// plan column; the plan id carries over.
					prevPlan = cur.PlanID
				}
				link = model.ChainLink{
					Year:       y - 1,
					ContractID: m.PrevContractID,
					PlanID:     prevPlan,
					Source:     model.LinkCrosswalk,
					Confidence: model.LinkCrosswalk.Confidence(),
				}
				break
			}
			if ok {
				// Crosswalk lists the plan as new that year.
				return finish(key, chain)
			}
			if !b.Index.ObservedIn(y-1, cur.ContractID, cur.PlanID) {
				return finish(key, chain)
			}
			link = model.ChainLink{
				Year:       y - 1,
				ContractID: cur.ContractID,
				PlanID:     cur.PlanID,
				Source:     model.LinkAssumedStable,
				Confidence: model.LinkAssumedStable.Confidence(),
			}
		}
		chain = append(chain, link)
		cur = crosswalk.Key{ContractID: link.ContractID, PlanID: link.PlanID}
	}
	return finish(key, chain)
}

func finish(key crosswalk.Key, chain []model.ChainLink) model.Entity {
	e := model.Entity{
		EntityID:          fmt.Sprintf("%s-%s", key.ContractID, key.PlanID),
		CurrentContractID: key.ContractID,
		CurrentPlanID:     key.PlanID,
		FirstYear:         chain[len(chain)-1].Year,
		LastYear:          chain[0].Year,
		IdentityChain:     chain,
		ChainLength:       len(chain),
		CreatedAt:         time.Now().UTC(),
	}
	for _, l := range chain {
		if l.Source == model.LinkCrosswalk {
			e.CrosswalkLinkCount++
		}
	}
	return e
}
