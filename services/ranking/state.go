package ranking

import (
	"context"
	"sort"
	"time"

	"cashback-ranking/pkg/execution"
)

// State carries the ranking fold across pages. Pages arrive ordered by
// transaction count descending, fiscal code ascending; the last tie class of a
// page may continue on the next one, so it is kept and ranked again together
// with the next page. Ranks are consecutive, 1..N, with no gaps.
type State struct {
	minPosition int64

	trailing      []*CitizenRanking
	trailingStart int64
	lastRank      int64

	extracted int64
	assigned  int64
	pages     int

	maxN   *int64
	minN   *int64
	lastN  int64
	cursor *Cursor
}

func NewState(minPosition int64) *State {
	return &State{minPosition: minPosition}
}

func (s *State) Cursor() *Cursor { return s.cursor }

func (s *State) Extracted() int64 { return s.extracted }

func (s *State) Assigned() int64 { return s.assigned }

func (s *State) Pages() int { return s.pages }

// Consistent reports whether every extracted row got exactly one rank.
func (s *State) Consistent() bool {
	return s.assigned == s.extracted && s.lastRank == s.assigned
}

// Apply ranks one page and returns the rows of that page with Ranking set.
// Rows of the carried tie class are ranked again but not returned.
func (s *State) Apply(ctx context.Context, strategy execution.Strategy, page []*CitizenRanking) ([]*CitizenRanking, error) {
	if len(page) == 0 {
		return nil, nil
	}
	s.pages++
	s.extracted += int64(len(page))

	carried := make(map[string]struct{}, len(s.trailing))
	combined := make([]*CitizenRanking, 0, len(s.trailing)+len(page))
	for _, r := range s.trailing {
		carried[r.FiscalCode] = struct{}{}
		combined = append(combined, r)
	}
	combined = append(combined, page...)

	classes, err := sortedClasses(ctx, strategy, combined)
	if err != nil {
		return nil, err
	}

	next := s.lastRank + 1
	if len(s.trailing) > 0 {
		next = s.trailingStart
	}

	fresh := make([]*CitizenRanking, 0, len(page))
	var lastStart int64
	for _, class := range classes {
		lastStart = next
		for _, r := range class {
			rank := next
			r.Ranking = &rank
			next++

			if _, ok := carried[r.FiscalCode]; ok {
				continue
			}
			fresh = append(fresh, r)
			s.observe(r)
		}
	}

	s.assigned += int64(len(fresh))
	s.lastRank = next - 1
	s.trailing = classes[len(classes)-1]
	s.trailingStart = lastStart

	tail := page[len(page)-1]
	s.cursor = &Cursor{TransactionN: tail.TransactionN, FiscalCode: tail.FiscalCode}

	return fresh, nil
}

func (s *State) observe(r *CitizenRanking) {
	n := r.TransactionN
	if *r.Ranking == 1 {
		s.maxN = &n
	}
	if *r.Ranking == s.minPosition {
		s.minN = &n
	}
	s.lastN = n
}

// Summary returns the period summary, or nil when nothing was ranked. The
// minimum is the count at rank minPosition, or at the last rank when fewer
// citizens took part.
func (s *State) Summary(awardPeriodID uint64, user string, at time.Time) *CitizenRankingExt {
	if s.assigned == 0 {
		return nil
	}

	ext := &CitizenRankingExt{
		AwardPeriodID:     awardPeriodID,
		MinTransactionN:   s.lastN,
		TotalParticipants: s.assigned,
		UpdateDate:        &at,
		UpdateUser:        user,
	}
	if s.maxN != nil {
		ext.MaxTransactionN = *s.maxN
	}
	if s.minN != nil {
		ext.MinTransactionN = *s.minN
	}
	return ext
}

// sortedClasses groups rows by transaction count, counts descending and fiscal
// codes ascending inside a class.
func sortedClasses(ctx context.Context, strategy execution.Strategy, rows []*CitizenRanking) ([][]*CitizenRanking, error) {
	grouped := execution.NewMergeMap[int64, []*CitizenRanking](strategy, func(a, b []*CitizenRanking) []*CitizenRanking {
		out := make([]*CitizenRanking, 0, len(a)+len(b))
		out = append(out, a...)
		return append(out, b...)
	})
	if err := strategy.ForEach(ctx, len(rows), func(_ context.Context, i int) error {
		grouped.Merge(rows[i].TransactionN, []*CitizenRanking{rows[i]})
		return nil
	}); err != nil {
		return nil, err
	}

	counts := make([]int64, 0, grouped.Len())
	grouped.Range(func(n int64, _ []*CitizenRanking) bool {
		counts = append(counts, n)
		return true
	})
	sort.Slice(counts, func(i, j int) bool { return counts[i] > counts[j] })

	classes := make([][]*CitizenRanking, 0, len(counts))
	for _, n := range counts {
		class, _ := grouped.Get(n)
		sort.Slice(class, func(i, j int) bool { return class[i].FiscalCode < class[j].FiscalCode })
		classes = append(classes, class)
	}
	return classes, nil
}
