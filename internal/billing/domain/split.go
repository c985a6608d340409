package billing

// Split is the guarantee-gated revenue split of a period's savings.
type Split struct {
	VibeluxShareCents    int64
	CustomerSavingsCents int64
	GuaranteeMet         bool
	Reason               string
}

// ComputeSplit applies the guarantee gate and the contractual revenue
// share. Below the guaranteed minimum the customer is never charged: the
// share is zero and the invoice carries an explicit reason. Share math is
// integer cents with half-up rounding on the basis-point multiply.
func ComputeSplit(savingsCents int64, savingsPct, guaranteedMinPct float64, revenueShareBps int) Split {
	if savingsPct < guaranteedMinPct {
		return Split{
			VibeluxShareCents:    0,
			CustomerSavingsCents: savingsCents,
			GuaranteeMet:         false,
			Reason:               BelowGuaranteeReason,
		}
	}

	billable := savingsCents
	if billable < 0 {
		billable = 0
	}
	share := mulBpsHalfUp(billable, revenueShareBps)
	return Split{
		VibeluxShareCents:    share,
		CustomerSavingsCents: savingsCents - share,
		GuaranteeMet:         true,
	}
}

func mulBpsHalfUp(cents int64, bps int) int64 {
	if cents <= 0 || bps <= 0 {
		return 0
	}
	return (cents*int64(bps) + 5000) / 10000
}
