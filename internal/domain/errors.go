package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrNoArticles       = errors.New("no articles to analyze")
	ErrBadAnalysis      = errors.New("unparseable analysis response")
	ErrStaleTransition  = errors.New("status transition no longer applicable")
	ErrRateLimited      = errors.New("rate limited")
)
