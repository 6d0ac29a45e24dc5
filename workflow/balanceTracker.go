package workflow

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// CurrencyBalance is an entity's sub-ledger for one currency.
type CurrencyBalance struct {
	Local   decimal.Decimal `json:"local"`
	Foreign decimal.Decimal `json:"foreign"`
}

// EntityBalance is the running signed sum for one business or tax category: credits add,
// debits subtract. Amounts booked without a foreign amount land in the local currency
// sub-ledger.
type EntityBalance struct {
	Account    models.CounterAccount
	Amount     decimal.Decimal
	Currencies map[string]CurrencyBalance
}

// BalanceTracker accumulates entries per entity. It is not safe for concurrent use; the
// orchestrator is its only writer.
type BalanceTracker struct {
	localCurrency string
	entities      map[entityKey]*EntityBalance
}

// entityKey separates businesses from tax categories; the two id spaces are not
// guaranteed to be disjoint.
type entityKey struct {
	id            string
	isTaxCategory bool
}

func keyOf(acc models.CounterAccount) entityKey {
	return entityKey{id: acc.Id, isTaxCategory: acc.IsTaxCategory}
}

func NewBalanceTracker(localCurrency string) *BalanceTracker {
	return &BalanceTracker{
		localCurrency: strings.ToUpper(localCurrency),
		entities:      make(map[entityKey]*EntityBalance),
	}
}

func (t *BalanceTracker) Apply(entries ...models.LedgerEntryProto) {
	for _, e := range entries {
		currency := strings.ToUpper(e.Currency)
		for _, side := range e.Sides() {
			key := keyOf(side.Account)
			ent, ok := t.entities[key]
			if !ok {
				ent = &EntityBalance{Account: side.Account, Currencies: make(map[string]CurrencyBalance)}
				t.entities[key] = ent
			}
			local := side.Local
			if !side.IsCredit {
				local = local.Neg()
			}
			ent.Amount = ent.Amount.Add(local)

			subCurrency, foreign := t.localCurrency, local
			if side.Foreign != nil && currency != "" && currency != t.localCurrency {
				subCurrency, foreign = currency, *side.Foreign
				if !side.IsCredit {
					foreign = foreign.Neg()
				}
			}
			sub := ent.Currencies[subCurrency]
			sub.Local = sub.Local.Add(local)
			sub.Foreign = sub.Foreign.Add(foreign)
			ent.Currencies[subCurrency] = sub
		}
	}
}

// Get returns a copy of the business balance.
func (t *BalanceTracker) Get(id string) (EntityBalance, bool) {
	return t.get(entityKey{id: id})
}

// GetTaxCategory returns a copy of the tax category balance.
func (t *BalanceTracker) GetTaxCategory(id string) (EntityBalance, bool) {
	return t.get(entityKey{id: id, isTaxCategory: true})
}

func (t *BalanceTracker) get(key entityKey) (EntityBalance, bool) {
	ent, ok := t.entities[key]
	if !ok {
		return EntityBalance{}, false
	}
	cp := EntityBalance{Account: ent.Account, Amount: ent.Amount, Currencies: make(map[string]CurrencyBalance, len(ent.Currencies))}
	for k, v := range ent.Currencies {
		cp.Currencies[k] = v
	}
	return cp, true
}

// Entities lists balances ordered by entity id, businesses first on a shared id.
func (t *BalanceTracker) Entities() []EntityBalance {
	keys := make([]entityKey, 0, len(t.entities))
	for k := range t.entities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return !keys[i].isTaxCategory && keys[j].isTaxCategory
	})
	out := make([]EntityBalance, 0, len(keys))
	for _, k := range keys {
		b, _ := t.get(k)
		out = append(out, b)
	}
	return out
}

// ForeignExposure lists the non-local currencies whose foreign sub-total exceeds tolerance.
func (b EntityBalance) ForeignExposure(localCurrency string, tolerance decimal.Decimal) []string {
	var out []string
	for c, sub := range b.Currencies {
		if strings.EqualFold(c, localCurrency) {
			continue
		}
		if sub.Foreign.Abs().GreaterThan(tolerance) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

type UnbalancedEntity struct {
	EntityId string          `json:"entity_id"`
	Balance  decimal.Decimal `json:"balance"`
}

type BalanceReport struct {
	BalanceSum         decimal.Decimal    `json:"balance_sum"`
	IsBalanced         bool               `json:"is_balanced"`
	UnbalancedEntities []UnbalancedEntity `json:"unbalanced_entities"`
}

// Report sums every entity outside allowList. Only businesses can be unbalanced; tax
// categories carry the net of the charge by construction.
func (t *BalanceTracker) Report(allowList map[string]struct{}, tolerance decimal.Decimal) BalanceReport {
	report := BalanceReport{BalanceSum: decimal.Zero, UnbalancedEntities: []UnbalancedEntity{}}
	for _, ent := range t.Entities() {
		if _, allowed := allowList[ent.Account.Id]; allowed && !ent.Account.IsTaxCategory {
			continue
		}
		report.BalanceSum = report.BalanceSum.Add(ent.Amount)
		if !ent.Account.IsTaxCategory && ent.Amount.Abs().GreaterThan(tolerance) {
			report.UnbalancedEntities = append(report.UnbalancedEntities, UnbalancedEntity{EntityId: ent.Account.Id, Balance: ent.Amount})
		}
	}
	report.IsBalanced = report.BalanceSum.Abs().LessThanOrEqual(tolerance) && len(report.UnbalancedEntities) == 0
	return report
}
