package reconciliation

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/payment"
)

type MatcherConfig struct {
	// DateTolerance is the largest gap between a deposit and a payment's
	// posted date that still counts as the same money.
	DateTolerance time.Duration
	// DiscrepancyRatio bounds |bank - system| / bank for a deposit to be
	// reported as a discrepancy against a payment rather than unmatched.
	DiscrepancyRatio float64
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{DateTolerance: 72 * time.Hour, DiscrepancyRatio: 0.05}
}

// Matcher pairs bank deposits with posted payments. It has no side effects.
type Matcher struct {
	cfg MatcherConfig
}

func NewMatcher(cfg MatcherConfig) *Matcher {
	if cfg.DateTolerance < 0 {
		cfg.DateTolerance = 0
	}
	if cfg.DiscrepancyRatio < 0 {
		cfg.DiscrepancyRatio = 0
	}
	return &Matcher{cfg: cfg}
}

type MatchResult struct {
	Matched               []Match
	Discrepancies         []Match
	UnmatchedTransactions []BankTransaction
	UnmatchedPayments     []uuid.UUID
}

type candidate struct {
	p    *payment.Payment
	used bool
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Match runs two passes over the deposits in date order. The first takes
// exact amounts inside the date window, closest posted date first. The
// second pairs leftover deposits with a payment in the window whose amount
// is within the discrepancy ratio, smallest difference first. Within a pass
// a deposit may displace an earlier one onto its next option, so a deposit
// is left over only when no pairing of that pass can include it.
// Withdrawals and deposits left after both passes are unmatched. Each
// payment is used at most once.
func (m *Matcher) Match(txns []BankTransaction, payments []*payment.Payment) MatchResult {
	var res MatchResult

	deposits := make([]BankTransaction, 0, len(txns))
	for _, t := range txns {
		t = t.normalize()
		if t.Type == TypeWithdrawal {
			res.UnmatchedTransactions = append(res.UnmatchedTransactions, t)
			continue
		}
		deposits = append(deposits, t)
	}
	sort.SliceStable(deposits, func(i, j int) bool {
		if !deposits[i].Date.Equal(deposits[j].Date) {
			return deposits[i].Date.Before(deposits[j].Date)
		}
		return deposits[i].ID < deposits[j].ID
	})

	cands := make([]*candidate, 0, len(payments))
	for _, p := range payments {
		if p.PostedDate == nil {
			continue
		}
		cands = append(cands, &candidate{p: p})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := cands[i].p, cands[j].p
		if !pi.PostedDate.Equal(*pj.PostedDate) {
			return pi.PostedDate.Before(*pj.PostedDate)
		}
		return pi.ID.String() < pj.ID.String()
	})

	exact := assign(deposits, func(d BankTransaction) []*candidate {
		return m.options(d, cands, func(c *candidate) (decimal.Decimal, bool) {
			return decimal.Zero, c.p.Amount.Equal(d.Amount)
		})
	})
	pending := make([]BankTransaction, 0, len(deposits))
	for i, d := range deposits {
		if c := exact[i]; c != nil {
			res.Matched = append(res.Matched, newMatch(d, c.p, MatchExact))
			continue
		}
		pending = append(pending, d)
	}

	near := assign(pending, func(d BankTransaction) []*candidate {
		limit := d.Amount.Mul(decimal.NewFromFloat(m.cfg.DiscrepancyRatio))
		return m.options(d, cands, func(c *candidate) (decimal.Decimal, bool) {
			diff := c.p.Amount.Sub(d.Amount).Abs()
			return diff, !diff.GreaterThan(limit)
		})
	})
	for i, d := range pending {
		if c := near[i]; c != nil {
			res.Discrepancies = append(res.Discrepancies, newMatch(d, c.p, MatchDiscrepancy))
			continue
		}
		res.UnmatchedTransactions = append(res.UnmatchedTransactions, d)
	}

	for _, c := range cands {
		if !c.used {
			res.UnmatchedPayments = append(res.UnmatchedPayments, c.p.ID)
		}
	}
	return res
}

// options returns the unused candidates inside the deposit's date window
// that accept reports as eligible, ordered by amount difference and then
// by date gap.
func (m *Matcher) options(d BankTransaction, cands []*candidate, accept func(*candidate) (decimal.Decimal, bool)) []*candidate {
	type option struct {
		c    *candidate
		diff decimal.Decimal
		gap  time.Duration
	}
	var opts []option
	for _, c := range cands {
		if c.used {
			continue
		}
		gap := absDuration(c.p.PostedDate.Sub(d.Date))
		if gap > m.cfg.DateTolerance {
			continue
		}
		diff, ok := accept(c)
		if !ok {
			continue
		}
		opts = append(opts, option{c: c, diff: diff, gap: gap})
	}
	sort.SliceStable(opts, func(i, j int) bool {
		if !opts[i].diff.Equal(opts[j].diff) {
			return opts[i].diff.LessThan(opts[j].diff)
		}
		return opts[i].gap < opts[j].gap
	})
	out := make([]*candidate, len(opts))
	for i, o := range opts {
		out[i] = o.c
	}
	return out
}

// assign pairs each deposit with one of its options using augmenting
// paths. A deposit takes its best free option; when all are taken it tries
// to move a holder onto another of the holder's options. The result is
// indexed like deposits and chosen candidates are marked used.
func assign(deposits []BankTransaction, optionsFor func(BankTransaction) []*candidate) []*candidate {
	opts := make([][]*candidate, len(deposits))
	for i, d := range deposits {
		opts[i] = optionsFor(d)
	}
	owner := make(map[*candidate]int)

	var try func(i int, seen map[*candidate]bool) bool
	try = func(i int, seen map[*candidate]bool) bool {
		for _, c := range opts[i] {
			if _, taken := owner[c]; !taken && !seen[c] {
				seen[c] = true
				owner[c] = i
				return true
			}
		}
		for _, c := range opts[i] {
			if seen[c] {
				continue
			}
			seen[c] = true
			if try(owner[c], seen) {
				owner[c] = i
				return true
			}
		}
		return false
	}
	for i := range deposits {
		try(i, make(map[*candidate]bool))
	}

	chosen := make([]*candidate, len(deposits))
	for c, i := range owner {
		c.used = true
		chosen[i] = c
	}
	return chosen
}

func newMatch(d BankTransaction, p *payment.Payment, kind MatchKind) Match {
	return Match{
		TransactionID: d.ID,
		PaymentID:     p.ID,
		Kind:          kind,
		BankAmount:    d.Amount,
		SystemAmount:  p.Amount,
		Difference:    d.Amount.Sub(p.Amount),
		BankDate:      d.Date,
		PostedDate:    *p.PostedDate,
	}
}
