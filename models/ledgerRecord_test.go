package models

import (
	"context"
	"testing"
)

func sampleEntry(amount string) LedgerEntryProto {
	foreign := dec("100")
	rate := dec("3.5")
	return LedgerEntryProto{
		ChargeId:                   "c-1",
		OwnerId:                    "owner",
		CreditAccountID1:           TaxCategoryAccount("tc-bank"),
		CreditAmount1:              &foreign,
		LocalCurrencyCreditAmount1: dec(amount),
		DebitAccountID1:            BusinessAccount("b-1"),
		DebitAmount1:               &foreign,
		LocalCurrencyDebitAmount1:  dec(amount),
		Currency:                   "USD",
		InvoiceDate:                day("2024-01-01"),
		ValueDate:                  day("2024-01-02"),
		Description:                "wire",
		Reference:                  "ref-1",
		CurrencyRate:               &rate,
	}
}

func TestLedgerRecordId_IsDeterministic(t *testing.T) {
	a := LedgerRecordId("c-1", sampleEntry("350"), 0)
	b := LedgerRecordId("c-1", sampleEntry("350.00"), 0)
	if a != b {
		t.Fatalf("equal amounts with different exponents produced different ids")
	}
	if a == LedgerRecordId("c-1", sampleEntry("350"), 1) {
		t.Fatalf("occurrence index must change the id")
	}
	if a == LedgerRecordId("c-2", sampleEntry("350"), 0) {
		t.Fatalf("charge id must change the id")
	}
}

func TestLedgerRecordStore_PersistIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewLedgerRecordStore(db)
	records := []LedgerEntryProto{sampleEntry("350"), sampleEntry("350"), sampleEntry("10")}

	inserted, err := store.PersistLedgerRecords(ctx, "c-1", records)
	if err != nil {
		t.Fatalf("first persist: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("first persist: expected 3 rows, got %d", inserted)
	}

	inserted, err = store.PersistLedgerRecords(ctx, "c-1", records)
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("second persist: expected 0 new rows, got %d", inserted)
	}

	rows, err := store.GetLedgerRecordsByCharge(ctx, "c-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 stored rows, got %d", len(rows))
	}

	back := rows[2].ToProto()
	if back.CreditAccountID1 == nil || !back.CreditAccountID1.IsTaxCategory || back.CreditAccountID1.Id != "tc-bank" {
		t.Fatalf("credit account lost: %+v", back.CreditAccountID1)
	}
	if !back.LocalCurrencyDebitAmount1.Equal(dec("10")) || back.DebitAccountID2 != nil {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}
