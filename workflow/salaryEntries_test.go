package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLedgerRecords_SalaryUnbatching(t *testing.T) {
	f := newFakeLedger()
	f.salaries = []models.Salary{
		{ID: "s1", Month: "2024-01", EmployeeId: "emp-1", PensionFundId: ptr("fund-1"), NetAmount: dec("6000"), PensionAmount: dec("500")},
		{ID: "s2", Month: "2024-01", EmployeeId: "emp-2", NetAmount: dec("4000")},
	}
	f.transactions = []models.Transaction{
		testTransaction("t1", "-6000", "ILS", "2024-02-01", "emp-1"),
		testTransaction("t2", "-4000", "ILS", "2024-02-01", bizBatchEmp),
		testTransaction("t3", "-500", "ILS", "2024-02-01", bizBatchFund),
	}
	charge := testCharge("c1")
	charge.Kind = models.ChargeKindSalary

	result, err := newTestGenerator(t, f).GenerateLedgerRecords(context.Background(), charge, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.True(t, result.Balance.IsBalanced)
	require.Len(t, result.Records, 6)
	for _, r := range result.Records {
		for _, s := range r.Sides() {
			assert.False(t, strings.HasPrefix(s.Account.Id, "batched-"), "%s still booked against %s", r.Description, s.Account.Id)
		}
	}

	totals := entityTotals(result.Records)
	for _, id := range []string{"emp-1", "emp-2", "fund-1"} {
		requireDec(t, "0", totals[id])
	}
	requireDec(t, "-10000", totals[tcSalary])
	requireDec(t, "-500", totals[tcPension])

	assert.Equal(t, "emp-2", result.Records[1].DebitAccountID1.Id)
	assert.Equal(t, "fund-1", result.Records[2].DebitAccountID1.Id)
	line := result.Records[3]
	assert.Equal(t, "Salary 2024-01", line.Description)
	assert.Equal(t, "emp-1", line.CreditAccountID1.Id)
	assert.Equal(t, day("2024-01-31"), line.ValueDate)
}

func TestBuildSalaryPlan_InvalidSalaries(t *testing.T) {
	charge := testCharge("c1")
	charge.Kind = models.ChargeKindSalary
	g := newTestGeneration(t, newFakeLedger(), charge)

	plan := g.buildSalaryPlan([]models.Salary{
		{ID: "s1", Month: "January", EmployeeId: "emp-1", NetAmount: dec("100")},
		{ID: "s2", Month: "2024-01", EmployeeId: "emp-2", NetAmount: dec("100"), PensionAmount: dec("10")},
	})

	assert.Empty(t, plan.LineItems.Entries)
	assert.Equal(t, []string{
		`salary s1: invalid month "January"`,
		"Salary s2 of employee emp-2 has pension contributions without a pension fund",
	}, plan.LineItems.Errors)
}

func TestSplitBatchedEntry(t *testing.T) {
	e := entry(models.BusinessAccount(bizBatchEmp), models.TaxCategoryAccount(tcSalary), "100")
	e.Description = "Salary 2024-01"
	tolerance := dec("0.005")

	parts, lerr := splitBatchedEntry(e, bizBatchEmp, []personShare{
		{PersonId: "a", Amount: dec("33.333")},
		{PersonId: "b", Amount: dec("33.333")},
		{PersonId: "c", Amount: dec("33.334")},
	}, tolerance)
	require.Nil(t, lerr)
	require.Len(t, parts, 3)
	want := []string{"33.33", "33.33", "33.34"}
	for i, p := range parts {
		requireDec(t, want[i], p.LocalCurrencyCreditAmount1)
		requireDec(t, want[i], p.LocalCurrencyDebitAmount1)
		assert.Equal(t, tcSalary, p.DebitAccountID1.Id)
	}
	assert.Equal(t, "c", parts[2].CreditAccountID1.Id)

	_, lerr = splitBatchedEntry(e, bizBatchEmp, []personShare{{PersonId: "a", Amount: dec("90")}}, tolerance)
	require.NotNil(t, lerr)
	assert.Equal(t, "Unbatched total 90.00 of batched-employees does not match batched amount 100.00 (Salary 2024-01)", lerr.Message)
}
