package reports

import (
	"fmt"
	"io"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/workflow"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	recordsSheet = "Records"
	balanceSheet = "Balance"
	errorsSheet  = "Errors"

	dateLayout = "2006-01-02"
)

var recordHeadings = []interface{}{
	"Description", "Reference", "Currency", "Invoice Date", "Value Date",
	"Credit Account 1", "Credit Amount 1", "Local Credit Amount 1",
	"Debit Account 1", "Debit Amount 1", "Local Debit Amount 1",
	"Credit Account 2", "Credit Amount 2", "Local Credit Amount 2",
	"Debit Account 2", "Debit Amount 2", "Local Debit Amount 2",
	"Currency Rate",
}

// WriteLedgerWorkbook writes the generated records, the balance report and the
// generation errors of one charge as an xlsx workbook.
func WriteLedgerWorkbook(w io.Writer, result *workflow.GeneratedLedgerResult) error {
	f, err := NewLedgerWorkbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func NewLedgerWorkbook(result *workflow.GeneratedLedgerResult) (*excelize.File, error) {
	if result == nil {
		return nil, fmt.Errorf("ledger workbook: no result")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	for _, name := range []string{balanceSheet, errorsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	rows := [][]interface{}{recordHeadings}
	for _, r := range result.Records {
		rows = append(rows, recordRow(r))
	}
	if err := writeRows(f, recordsSheet, rows); err != nil {
		return nil, err
	}

	rows = [][]interface{}{
		{"Charge", result.ChargeId},
		{"Balance Sum", result.Balance.BalanceSum.String()},
		{"Is Balanced", result.Balance.IsBalanced},
		{},
		{"Unbalanced Entity", "Balance"},
	}
	for _, u := range result.Balance.UnbalancedEntities {
		rows = append(rows, []interface{}{u.EntityId, u.Balance.String()})
	}
	if err := writeRows(f, balanceSheet, rows); err != nil {
		return nil, err
	}

	rows = [][]interface{}{{"Error"}}
	for _, e := range result.Errors {
		rows = append(rows, []interface{}{e})
	}
	if err := writeRows(f, errorsSheet, rows); err != nil {
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func recordRow(r models.LedgerEntryProto) []interface{} {
	row := []interface{}{
		r.Description,
		r.Reference,
		r.Currency,
		r.InvoiceDate.Format(dateLayout),
		r.ValueDate.Format(dateLayout),
	}
	row = append(row, slotCells(r.CreditAccountID1, r.CreditAmount1, r.LocalCurrencyCreditAmount1)...)
	row = append(row, slotCells(r.DebitAccountID1, r.DebitAmount1, r.LocalCurrencyDebitAmount1)...)
	row = append(row, slotCells(r.CreditAccountID2, r.CreditAmount2, r.LocalCurrencyCreditAmount2)...)
	row = append(row, slotCells(r.DebitAccountID2, r.DebitAmount2, r.LocalCurrencyDebitAmount2)...)
	return append(row, decimalCell(r.CurrencyRate))
}

// slotCells leaves an unused account slot blank.
func slotCells(acc *models.CounterAccount, foreign *decimal.Decimal, local decimal.Decimal) []interface{} {
	if acc == nil {
		return []interface{}{"", "", ""}
	}
	return []interface{}{acc.Id, decimalCell(foreign), local.String()}
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
