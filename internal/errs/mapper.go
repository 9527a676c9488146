package errs

import "errors"

// Rule exposes T whenever every error in Match is part of the chain.
type Rule[T any] struct {
	Match   []error
	Exposed T
}

// Mapper translates internal error chains into an exposed representation
// (HTTP problem, CLI exit code ...).
type Mapper[T any] struct {
	rules    []Rule[T]
	fallback T
}

func NewMapper[T any](fallback T, rules ...Rule[T]) Mapper[T] {
	return Mapper[T]{rules: rules, fallback: fallback}
}

// Transform picks the rule matching the most errors of the chain. Ties go to
// the rule declared first. Without any match the fallback is returned.
func (m Mapper[T]) Transform(err error) T {
	if err == nil {
		return m.fallback
	}

	best := -1
	bestCount := 0

	for i, rule := range m.rules {
		count := CountMatchingErrors(err, rule.Match)
		if count == 0 || count < len(rule.Match) {
			continue
		}

		if count > bestCount {
			best = i
			bestCount = count
		}
	}

	if best < 0 {
		return m.fallback
	}

	return m.rules[best].Exposed
}

// CountMatchingErrors counts the number of candidates that match err
func CountMatchingErrors(err error, candidates []error) int {
	matchCount := 0

	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			matchCount++
		}
	}

	return matchCount
}
