package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	InsertIfNotExists bool
}

type GeneratedLedgerResult struct {
	ChargeId         string                    `json:"charge_id"`
	Records          []models.LedgerEntryProto `json:"records"`
	Balance          BalanceReport             `json:"balance"`
	Errors           []string                  `json:"errors"`
	PersistedRecords int64                     `json:"persisted_records"`
}

// TerminalFailure is returned instead of a result when generation hit a fatal error.
// No records are returned or persisted.
type TerminalFailure struct {
	ChargeId string `json:"charge_id"`
	Message  string `json:"message"`
}

func (f *TerminalFailure) Error() string {
	return fmt.Sprintf("ledger generation for charge %s failed: %s", f.ChargeId, f.Message)
}

type LedgerGenerator struct {
	deps      Dependencies
	policy    config.LedgerPolicy
	logger    *logrus.Logger
	converter currencyConverter
	validate  *validator.Validate
	tracer    trace.Tracer
}

func NewLedgerGenerator(deps Dependencies, policy config.LedgerPolicy, logger *logrus.Logger) (*LedgerGenerator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	policy.LocalCurrency = strings.ToUpper(policy.LocalCurrency)
	policy.CryptoReferenceCurrency = strings.ToUpper(policy.CryptoReferenceCurrency)
	return &LedgerGenerator{
		deps:      deps,
		policy:    policy,
		logger:    logger,
		converter: currencyConverter{rates: deps.ExchangeRates, policy: policy},
		validate:  validator.New(),
		tracer:    otel.Tracer("books_ledger/workflow"),
	}, nil
}

// generation is the state of one GenerateLedgerRecords call.
type generation struct {
	*LedgerGenerator
	charge            models.Charge
	business          *models.Business
	chargeTaxCategory string
	documents         []models.Document
	split             feeSplit
	selfClosing       bool
}

// slot groups, in output order
const (
	groupDocuments = iota
	groupMainTransactions
	groupFees
	groupMiscExpenses
	groupCount
)

type slotResult struct {
	group, index int
	result       EntriesResult
	err          error
}

type sources struct {
	transactions  []models.Transaction
	documents     []models.Document
	allowList     map[string]struct{}
	miscExpenses  []models.MiscExpense
	cancellations []models.BalanceCancellation
	salaries      []models.Salary
	trip          *models.BusinessTrip
}

// GenerateLedgerRecords derives the ledger entries of a charge, balances them and
// optionally persists them. Recoverable problems are reported in the result; a fatal
// problem yields a *TerminalFailure and no result.
func (lg *LedgerGenerator) GenerateLedgerRecords(ctx context.Context, charge *models.Charge, opts Options) (result *GeneratedLedgerResult, err error) {
	chargeId := ""
	if charge != nil {
		chargeId = charge.ID
	}
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx = utils.SetChargeIdInContext(ctx, chargeId)
	ctx, span := lg.tracer.Start(ctx, "GenerateLedgerRecords", trace.WithAttributes(attribute.String("charge.id", chargeId)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &TerminalFailure{ChargeId: chargeId, Message: fmt.Sprint(r)}
		}
		if err != nil {
			var failure *TerminalFailure
			if !errors.As(err, &failure) {
				failure = &TerminalFailure{ChargeId: chargeId, Message: err.Error()}
			}
			result, err = nil, failure
			span.RecordError(failure)
			span.SetStatus(codes.Error, failure.Message)
			config.LogError(lg.logger, "generateLedgerRecords.go", "GenerateLedgerRecords", "generating ledger records", map[string]string{"charge_id": chargeId, "correlation_id": correlationId}, failure)
			return
		}
		span.SetAttributes(
			attribute.Int("ledger.records", len(result.Records)),
			attribute.Int("ledger.errors", len(result.Errors)),
			attribute.Bool("ledger.balanced", result.Balance.IsBalanced),
		)
		fields := logrus.Fields{"charge_id": chargeId, "correlation_id": correlationId}
		for _, msg := range result.Errors {
			lg.logger.WithFields(fields).Warn(msg)
		}
		lg.logger.WithFields(fields).WithFields(logrus.Fields{
			"records":     len(result.Records),
			"errors":      len(result.Errors),
			"is_balanced": result.Balance.IsBalanced,
			"persisted":   result.PersistedRecords,
		}).Info("ledger generation finished")
	}()

	if charge == nil {
		return nil, errors.New("charge is required")
	}
	g := &generation{LedgerGenerator: lg, charge: *charge}
	if g.charge.Kind == "" {
		g.charge.Kind = models.ChargeKindCommon
	}
	if err := lg.validate.Struct(g.charge); err != nil {
		return nil, fmt.Errorf("invalid charge: %w", err)
	}
	return g.run(ctx, opts)
}

func (g *generation) run(ctx context.Context, opts Options) (*GeneratedLedgerResult, error) {
	src, err := g.loadSources(ctx)
	if err != nil {
		return nil, err
	}
	if err := g.loadChargeContext(ctx); err != nil {
		return nil, err
	}

	g.split = splitFees(src.transactions)
	g.selfClosing = isSelfClosing(g.split, g.policy.SelfClosingThreshold) && g.charge.BusinessId == nil
	g.documents = src.documents

	canSettleWithReceipt := g.charge.CanSettleWithReceipt || (g.business != nil && g.business.CanSettleWithReceipt)
	relevant := relevantDocuments(src.documents, canSettleWithReceipt)

	var plan salaryPlan
	var unbatcher salaryUnbatcher
	isSalary := g.charge.Kind == models.ChargeKindSalary
	if isSalary {
		plan = g.buildSalaryPlan(src.salaries)
		unbatcher = newSalaryUnbatcher(plan, g.split.Main, g.policy.BalanceTolerance)
	}

	tracker := NewBalanceTracker(g.policy.LocalCurrency)
	slots, err := g.generateFacts(ctx, tracker, relevant, src.miscExpenses, func(group int, r EntriesResult) EntriesResult {
		if isSalary && group == groupMainTransactions {
			return unbatcher.transactions(r)
		}
		return r
	})
	if err != nil {
		return nil, err
	}

	var records []models.LedgerEntryProto
	var errs []string
	var anchor *models.LedgerEntryProto
	documentEntries := 0
	for group := range slots {
		for _, r := range slots[group] {
			if group == groupMainTransactions && anchor == nil && len(r.Entries) > 0 {
				first := r.Entries[0]
				anchor = &first
			}
			if group == groupDocuments {
				documentEntries += len(r.Entries)
			}
			records = append(records, r.Entries...)
			errs = append(errs, r.Errors...)
		}
	}

	requirement, err := g.documentRequirement(ctx, relevant)
	if err != nil {
		return nil, err
	}
	errs = append(errs, requirement.Errors...)

	var extensions []EntriesResult
	switch g.charge.Kind {
	case models.ChargeKindSalary:
		extensions = append(extensions, unbatcher.lineItems(plan.LineItems))
	case models.ChargeKindBusinessTrip:
		var trip EntriesResult
		if src.trip == nil {
			trip.addError(ledgerErrorf("Business trip of charge %s not found", g.charge.ID))
		} else {
			trip, err = g.businessTripEntries(ctx, *src.trip)
			if err != nil {
				return nil, err
			}
		}
		extensions = append(extensions, trip)
	}
	for _, ext := range extensions {
		tracker.Apply(ext.Entries...)
	}
	for _, c := range src.cancellations {
		r, err := g.balanceCancellationEntry(c, tracker, anchor)
		if err != nil {
			return nil, err
		}
		tracker.Apply(r.Entries...)
		extensions = append(extensions, r)
	}
	for _, ext := range extensions {
		records = append(records, ext.Entries...)
		errs = append(errs, ext.Errors...)
	}

	conversions := g.balanceMultiCurrency(tracker, records)
	tracker.Apply(conversions.Entries...)
	records = append(records, conversions.Entries...)
	errs = append(errs, conversions.Errors...)

	correction, err := g.reconcileBalance(ctx, tracker, records, documentEntries, src.allowList)
	if err != nil {
		return nil, err
	}
	tracker.Apply(correction.Entries...)
	records = append(records, correction.Entries...)
	errs = append(errs, correction.Errors...)

	if records == nil {
		records = []models.LedgerEntryProto{}
	}
	result := &GeneratedLedgerResult{
		ChargeId: g.charge.ID,
		Records:  records,
		Balance:  tracker.Report(src.allowList, g.policy.BalanceTolerance),
		Errors:   dedupeErrors(errs),
	}

	if opts.InsertIfNotExists {
		if g.deps.Store == nil {
			return nil, errors.New("no ledger record store configured")
		}
		n, err := g.deps.Store.PersistLedgerRecords(ctx, g.charge.ID, records)
		if err != nil {
			return nil, fmt.Errorf("persisting ledger records: %w", err)
		}
		result.PersistedRecords = n
	}
	return result, nil
}

// generateFacts runs one generator per document, transaction, fee and misc expense
// concurrently. The tracker is updated here, on the calling goroutine, as each result
// arrives; results are slotted by input position.
func (g *generation) generateFacts(ctx context.Context, tracker *BalanceTracker, documents []models.Document, misc []models.MiscExpense, post func(group int, r EntriesResult) EntriesResult) ([groupCount][]EntriesResult, error) {
	var slots [groupCount][]EntriesResult
	slots[groupDocuments] = make([]EntriesResult, len(documents))
	slots[groupMainTransactions] = make([]EntriesResult, len(g.split.Main))
	slots[groupFees] = make([]EntriesResult, len(g.split.Fees))
	slots[groupMiscExpenses] = make([]EntriesResult, len(misc))

	total := 0
	for _, s := range slots {
		total += len(s)
	}
	results := make(chan slotResult, total)
	eg, egCtx := errgroup.WithContext(ctx)
	launch := func(group, index int, fn func(context.Context) (EntriesResult, error)) {
		eg.Go(func() (err error) {
			var r EntriesResult
			defer func() {
				if p := recover(); p != nil {
					r, err = EntriesResult{}, fmt.Errorf("ledger generator panicked: %v", p)
				}
				results <- slotResult{group: group, index: index, result: r, err: err}
			}()
			r, err = fn(egCtx)
			return err
		})
	}

	for i, doc := range documents {
		launch(groupDocuments, i, func(ctx context.Context) (EntriesResult, error) { return g.documentEntries(ctx, doc) })
	}
	for i, tx := range g.split.Main {
		launch(groupMainTransactions, i, func(ctx context.Context) (EntriesResult, error) { return g.mainTransactionEntries(ctx, tx) })
	}
	for i, fee := range g.split.Fees {
		launch(groupFees, i, func(ctx context.Context) (EntriesResult, error) { return g.feeTransactionEntries(ctx, fee) })
	}
	for i, expense := range misc {
		launch(groupMiscExpenses, i, func(ctx context.Context) (EntriesResult, error) { return g.miscExpenseEntries(ctx, expense) })
	}

	for range total {
		r := <-results
		if r.err != nil {
			continue
		}
		res := post(r.group, r.result)
		tracker.Apply(res.Entries...)
		slots[r.group][r.index] = res
	}
	if err := eg.Wait(); err != nil {
		return slots, err
	}
	return slots, nil
}

// documentRequirement flags main transactions above the threshold on common charges
// that have no supporting document.
func (g *generation) documentRequirement(ctx context.Context, relevant []models.Document) (EntriesResult, error) {
	var result EntriesResult
	if g.charge.Kind != models.ChargeKindCommon || len(relevant) > 0 || g.noInvoicesRequired() {
		return result, nil
	}
	threshold := g.policy.DocumentRequiredThreshold
	for _, tx := range g.split.Main {
		if strings.TrimSpace(tx.Currency) == "" {
			continue
		}
		conv, err := g.converter.toLocal(ctx, tx.Amount.Abs(), tx.Currency, tx.ConversionDate())
		if err != nil {
			if IsLedgerError(err) {
				continue
			}
			return EntriesResult{}, err
		}
		if conv.Local.GreaterThan(threshold) {
			result.addError(ledgerErrorf("Transaction %s of %s %s exceeds %s %s and requires a supporting invoice or receipt",
				tx.ID, tx.Amount.Abs().StringFixed(2), strings.ToUpper(tx.Currency), threshold.String(), g.policy.LocalCurrency))
		}
	}
	return result, nil
}

func (g *generation) loadSources(ctx context.Context) (sources, error) {
	var src sources
	var err error
	id := g.charge.ID
	if src.transactions, err = g.deps.Transactions.GetTransactionsForCharge(ctx, id); err != nil {
		return src, fmt.Errorf("loading transactions: %w", err)
	}
	if src.documents, err = g.deps.Documents.GetDocumentsForCharge(ctx, id); err != nil {
		return src, fmt.Errorf("loading documents: %w", err)
	}
	if g.deps.UnbalancedBusinesses != nil {
		if src.allowList, err = g.deps.UnbalancedBusinesses.GetUnbalancedBusinessAllowList(ctx, id); err != nil {
			return src, fmt.Errorf("loading unbalanced business allow list: %w", err)
		}
	}
	if g.deps.MiscExpenses != nil {
		if src.miscExpenses, err = g.deps.MiscExpenses.GetMiscExpensesForCharge(ctx, id); err != nil {
			return src, fmt.Errorf("loading misc expenses: %w", err)
		}
	}
	if g.deps.BalanceCancellations != nil {
		if src.cancellations, err = g.deps.BalanceCancellations.GetBalanceCancellations(ctx, id); err != nil {
			return src, fmt.Errorf("loading balance cancellations: %w", err)
		}
	}
	if g.charge.Kind == models.ChargeKindSalary && g.deps.Salaries != nil {
		if src.salaries, err = g.deps.Salaries.GetSalariesForCharge(ctx, id); err != nil {
			return src, fmt.Errorf("loading salaries: %w", err)
		}
	}
	if g.charge.Kind == models.ChargeKindBusinessTrip && g.deps.BusinessTrips != nil {
		src.trip, err = g.deps.BusinessTrips.GetBusinessTripByCharge(ctx, id)
		if err != nil && !isNotFound(err) {
			return src, fmt.Errorf("loading business trip: %w", err)
		}
	}
	if src.allowList == nil {
		src.allowList = map[string]struct{}{}
	}
	return src, nil
}

// loadChargeContext resolves the charge's business and tax category. Either may be
// missing; generators report what they cannot do without them.
func (g *generation) loadChargeContext(ctx context.Context) error {
	if g.charge.BusinessId != nil && g.deps.Businesses != nil {
		business, err := g.deps.Businesses.GetBusiness(ctx, *g.charge.BusinessId)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("loading business %s: %w", *g.charge.BusinessId, err)
		}
		g.business = business
	}
	if g.charge.TaxCategoryId != nil && *g.charge.TaxCategoryId != "" {
		id, err := g.deps.TaxCategories.ResolveTaxCategory(ctx, *g.charge.TaxCategoryId)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("resolving tax category of charge: %w", err)
		}
		g.chargeTaxCategory = id
	}
	return nil
}
