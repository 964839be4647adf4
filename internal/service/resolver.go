package service

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/vidinfra/planshift/internal/catalog"
	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/types"
)

// ResolvedPrices is a licensed+metered target price pair for one
// plan and interval.
type ResolvedPrices struct {
	Licensed *price.Price
	Metered  *price.Price
}

// ResolveParams selects the catalog slice and the floor-match variant
// used to map the reference metered price onto it.
type ResolveParams struct {
	Interval       types.BillingInterval
	PlanKey        types.PlanKey
	MeteredPriceID string
	UpdateType     types.PriceUpdateType
}

// PriceResolver maps a reference metered price onto the equivalent
// price of another plan or interval. Tier caps are not guaranteed
// identical across catalogs, so mapping preserves usage headroom by
// floor match: the greatest candidate cap not exceeding the reference
// cap, falling back to the smallest candidate when the reference sits
// below all of them.
type PriceResolver interface {
	// MeteredPriceByID loads a mirrored price and asserts it is a
	// tiered metered price
	MeteredPriceByID(ctx context.Context, stripePriceID string) (*price.Price, error)

	// ResolveForInterval floor-matches with the reference cap scaled
	// to the target interval's unit
	ResolveForInterval(ctx context.Context, candidates []*price.Price, referencePriceID string, targetInterval types.BillingInterval) (*price.Price, error)

	// ResolveForPlanSwitch floor-matches without scaling; reference
	// and candidates share an interval already
	ResolveForPlanSwitch(ctx context.Context, candidates []*price.Price, referencePriceID string) (*price.Price, error)

	// ResolveForMeteredSwitch maps an explicitly requested metered
	// price onto the given interval's candidate pool
	ResolveForMeteredSwitch(ctx context.Context, candidates []*price.Price, targetMeteredPriceID string, interval types.BillingInterval) (*price.Price, error)

	// ResolveLicensedAndMetered fetches the plan+interval catalog,
	// picks the base licensed price, and delegates metered resolution
	// per the update type
	ResolveLicensedAndMetered(ctx context.Context, params ResolveParams) (*ResolvedPrices, error)
}

type priceResolver struct {
	priceRepo price.Repository
	catalog   catalog.Service
	logger    *logger.Logger
}

// NewPriceResolver creates the catalog price resolver
func NewPriceResolver(params ServiceParams) PriceResolver {
	return &priceResolver{
		priceRepo: params.PriceRepo,
		catalog:   params.Catalog,
		logger:    params.Logger,
	}
}

func (r *priceResolver) MeteredPriceByID(ctx context.Context, stripePriceID string) (*price.Price, error) {
	p, err := r.priceRepo.FindByStripePriceID(ctx, stripePriceID)
	if err != nil {
		return nil, err
	}
	if _, err := p.Cap(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *priceResolver) ResolveForInterval(ctx context.Context, candidates []*price.Price, referencePriceID string, targetInterval types.BillingInterval) (*price.Price, error) {
	return r.floorMatch(ctx, candidates, referencePriceID, &targetInterval)
}

func (r *priceResolver) ResolveForPlanSwitch(ctx context.Context, candidates []*price.Price, referencePriceID string) (*price.Price, error) {
	return r.floorMatch(ctx, candidates, referencePriceID, nil)
}

func (r *priceResolver) ResolveForMeteredSwitch(ctx context.Context, candidates []*price.Price, targetMeteredPriceID string, interval types.BillingInterval) (*price.Price, error) {
	return r.floorMatch(ctx, candidates, targetMeteredPriceID, &interval)
}

func (r *priceResolver) ResolveLicensedAndMetered(ctx context.Context, params ResolveParams) (*ResolvedPrices, error) {
	candidates, err := r.catalog.GetProductPrices(ctx, price.Filter{
		PlanKey:  params.PlanKey,
		Interval: params.Interval,
	})
	if err != nil {
		return nil, err
	}

	licensed, ok := lo.Find(candidates, func(p *price.Price) bool {
		return p.ProductKey == types.ProductKeyBase
	})
	if !ok {
		return nil, ierr.NewError("base licensed price not found").
			WithHintf("Catalog for plan %s interval %s has no %s price", params.PlanKey, params.Interval, types.ProductKeyBase).
			Mark(ierr.ErrNotFound)
	}

	var metered *price.Price
	switch params.UpdateType {
	case types.PriceUpdateTypeInterval:
		metered, err = r.ResolveForInterval(ctx, candidates, params.MeteredPriceID, params.Interval)
	default:
		metered, err = r.ResolveForPlanSwitch(ctx, candidates, params.MeteredPriceID)
	}
	if err != nil {
		return nil, err
	}

	return &ResolvedPrices{Licensed: licensed, Metered: metered}, nil
}

// floorMatch selects the greatest candidate cap not exceeding the
// reference cap, scaled to targetInterval when set, falling back to
// the smallest candidate.
func (r *priceResolver) floorMatch(ctx context.Context, catalogPrices []*price.Price, referencePriceID string, targetInterval *types.BillingInterval) (*price.Price, error) {
	reference, err := r.MeteredPriceByID(ctx, referencePriceID)
	if err != nil {
		return nil, err
	}

	refCap, err := reference.Cap()
	if err != nil {
		return nil, err
	}
	if targetInterval != nil {
		refCap = scaleCap(refCap, reference.Interval, *targetInterval)
	}

	candidates := meteredCandidates(catalogPrices, targetInterval)
	if len(candidates) == 0 {
		return nil, ierr.NewError("no metered candidates found for mapping").
			WithHintf("No metered prices available to map price %s onto", referencePriceID).
			Mark(ierr.ErrNotFound)
	}

	match := candidates[0]
	for _, c := range candidates {
		cap, err := c.Cap()
		if err != nil {
			return nil, err
		}
		if cap <= refCap {
			match = c
		}
	}
	return match, nil
}

// meteredCandidates filters to tiered metered prices, optionally
// restricted to one interval, sorted ascending by cap
func meteredCandidates(catalogPrices []*price.Price, interval *types.BillingInterval) []*price.Price {
	candidates := lo.Filter(catalogPrices, func(p *price.Price, _ int) bool {
		if interval != nil && p.Interval != *interval {
			return false
		}
		if !p.IsMetered() {
			return false
		}
		_, err := p.Cap()
		return err == nil
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		capI, _ := candidates[i].Cap()
		capJ, _ := candidates[j].Cap()
		return capI < capJ
	})

	return candidates
}

// scaleCap converts a tier cap between interval units
func scaleCap(cap int64, from, to types.BillingInterval) int64 {
	if from == to {
		return cap
	}
	if from == types.BillingIntervalMonth && to == types.BillingIntervalYear {
		return cap * 12
	}
	return cap / 12
}
