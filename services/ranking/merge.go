package ranking

// Merge combines two partial records of the same citizen: cashback and
// transaction counts add up, the last transaction timestamp is the later one.
// Neither input is modified.
func Merge(a, b *CitizenRanking) *CitizenRanking {
	out := *a
	out.Cashback = a.Cashback.Add(b.Cashback)
	out.TransactionN = a.TransactionN + b.TransactionN

	switch {
	case a.LastTrxTimestamp == nil:
		out.LastTrxTimestamp = b.LastTrxTimestamp
	case b.LastTrxTimestamp != nil && b.LastTrxTimestamp.After(*a.LastTrxTimestamp):
		out.LastTrxTimestamp = b.LastTrxTimestamp
	}

	if out.UpdateDate == nil || (b.UpdateDate != nil && b.UpdateDate.After(*out.UpdateDate)) {
		out.UpdateDate = b.UpdateDate
		out.UpdateUser = b.UpdateUser
	}
	return &out
}
