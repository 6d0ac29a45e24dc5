package workflow

import "github.com/mmdatafocus/books_ledger/models"

// classifiedFee is a fee transaction. Sibling is set for supplemental fees: the main
// transaction whose business bears the fee.
type classifiedFee struct {
	Tx      models.Transaction
	Sibling *models.Transaction
}

func (f classifiedFee) isSupplemental() bool { return f.Sibling != nil }

type feeSplit struct {
	Main []models.Transaction
	Fees []classifiedFee
}

// splitFees partitions transactions into main and fee transactions. A fee is supplemental
// when it points at a main transaction with a business, either explicitly through
// RelatedTransactionId or by sharing a non-empty source reference.
func splitFees(txs []models.Transaction) feeSplit {
	var split feeSplit
	for _, tx := range txs {
		if !tx.IsFee {
			split.Main = append(split.Main, tx)
		}
	}
	for _, tx := range txs {
		if tx.IsFee {
			split.Fees = append(split.Fees, classifiedFee{Tx: tx, Sibling: findSibling(tx, split.Main)})
		}
	}
	return split
}

func findSibling(fee models.Transaction, main []models.Transaction) *models.Transaction {
	if fee.RelatedTransactionId != nil {
		for i := range main {
			if main[i].ID == *fee.RelatedTransactionId && main[i].BusinessId != nil {
				return &main[i]
			}
		}
	}
	if fee.SourceReference == "" {
		return nil
	}
	for i := range main {
		if main[i].SourceReference == fee.SourceReference && main[i].BusinessId != nil {
			return &main[i]
		}
	}
	return nil
}
