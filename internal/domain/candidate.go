package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CandidateKind distinguishes the two catalyst sources a candidate can come
// from.
type CandidateKind string

const (
	KindEarnings CandidateKind = "earnings"
	KindIPO      CandidateKind = "ipo"
)

// Buy-time offsets from midnight UTC of the reference date. Earnings sessions
// map to a fixed intraday buy time; IPOs always target mid-session.
const (
	beforeOpenOffset  = 9*time.Hour + 30*time.Minute
	duringHoursOffset = 14 * time.Hour
	afterCloseOffset  = 33*time.Hour + 30*time.Minute
	ipoBuyOffset      = 14 * time.Hour
)

// Candidate is a raw catalyst entry before promotion to an Action.
type Candidate struct {
	Symbol        string
	Kind          CandidateKind
	ReferenceDate time.Time
	BuyTime       time.Time
	Eligible      bool

	// Earnings only.
	RevenueEstimate float64
	EPSEstimate     float64

	// IPO only.
	Name          string
	ExpectedPrice float64
}

func sessionOffset(code string) (time.Duration, bool) {
	switch code {
	case "bmo":
		return beforeOpenOffset, true
	case "dmh":
		return duringHoursOffset, true
	case "amc":
		return afterCloseOffset, true
	}
	return 0, false
}

// NewEarningsCandidate builds an earnings candidate from a calendar entry.
// An unknown session code yields an ineligible candidate, not an error. A
// candidate is eligible only when its buy time is still in the future and the
// EPS estimate is positive.
func NewEarningsCandidate(symbol, date, sessionCode string, revenueEstimate, epsEstimate float64, now time.Time) (Candidate, error) {
	refDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Candidate{}, fmt.Errorf("domain: parse earnings date %q: %w", date, err)
	}

	c := Candidate{
		Symbol:          strings.ToUpper(strings.TrimSpace(symbol)),
		Kind:            KindEarnings,
		ReferenceDate:   refDate,
		RevenueEstimate: revenueEstimate,
		EPSEstimate:     epsEstimate,
	}

	offset, ok := sessionOffset(sessionCode)
	if !ok {
		return c, nil
	}

	c.BuyTime = refDate.Add(offset)
	c.Eligible = c.BuyTime.After(now) && epsEstimate > 0
	return c, nil
}

// NewIPOCandidate builds an IPO candidate from a calendar entry. The expected
// price field is either a single number or a "low-high" range, in which case
// the midpoint is used.
func NewIPOCandidate(symbol, name, date, price string, _ time.Time) (Candidate, error) {
	refDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Candidate{}, fmt.Errorf("domain: parse ipo date %q: %w", date, err)
	}

	expected, err := parseExpectedPrice(price)
	if err != nil {
		return Candidate{}, err
	}

	return Candidate{
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Kind:          KindIPO,
		ReferenceDate: refDate,
		BuyTime:       refDate.Add(ipoBuyOffset),
		Eligible:      true,
		Name:          name,
		ExpectedPrice: expected,
	}, nil
}

func parseExpectedPrice(price string) (float64, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return 0, fmt.Errorf("domain: empty expected price")
	}

	if low, high, ok := strings.Cut(price, "-"); ok {
		lo, err := strconv.ParseFloat(strings.TrimSpace(low), 64)
		if err != nil {
			return 0, fmt.Errorf("domain: parse price range low %q: %w", price, err)
		}
		hi, err := strconv.ParseFloat(strings.TrimSpace(high), 64)
		if err != nil {
			return 0, fmt.Errorf("domain: parse price range high %q: %w", price, err)
		}
		return (lo + hi) / 2, nil
	}

	v, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: parse expected price %q: %w", price, err)
	}
	return v, nil
}

// SortEarningsCandidates orders by buy time, then ascending revenue estimate.
func SortEarningsCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].BuyTime.Equal(cs[j].BuyTime) {
			return cs[i].BuyTime.Before(cs[j].BuyTime)
		}
		return cs[i].RevenueEstimate < cs[j].RevenueEstimate
	})
}

// SortIPOCandidates orders by buy time, then ascending expected price.
func SortIPOCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].BuyTime.Equal(cs[j].BuyTime) {
			return cs[i].BuyTime.Before(cs[j].BuyTime)
		}
		return cs[i].ExpectedPrice < cs[j].ExpectedPrice
	})
}
