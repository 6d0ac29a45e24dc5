package middlewares

import (
	"context"
	"fmt"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
)

type businessReader struct {
	provider *models.BusinessProvider
}

func (r *businessReader) getBusinesses(ctx context.Context, ids []string) []*dataloader.Result[*models.Business] {
	found, err := r.provider.GetBusinesses(ctx, ids)
	if err != nil {
		return handleError[*models.Business](len(ids), err)
	}
	results := make([]*dataloader.Result[*models.Business], len(ids))
	for i, id := range ids {
		if b, ok := found[id]; ok {
			results[i] = &dataloader.Result[*models.Business]{Data: b}
			continue
		}
		results[i] = &dataloader.Result[*models.Business]{Error: fmt.Errorf("business %s: %w", id, utils.ErrorRecordNotFound)}
	}
	return results
}

// Businesses resolves businesses through the loaders on the context when present.
type Businesses struct {
	Fallback *models.BusinessProvider
}

func (s Businesses) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	loaders := For(ctx)
	if loaders == nil {
		return s.Fallback.GetBusiness(ctx, id)
	}
	return loaders.BusinessLoader.Load(ctx, id)()
}
