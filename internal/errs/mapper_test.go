package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zeebo/assert"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

var (
	ErrTest       = errors.New("test error")
	ErrAnother    = errors.New("another error")
	ErrYetAnother = errors.New("yet another error")

	errA = errors.New("errA")
	errB = errors.New("errB")
	errC = errors.New("errC")
)

func TestCountMatchingErrors(t *testing.T) {
	candidates := []error{ErrTest, ErrAnother}
	tests := []struct {
		name       string
		err        error
		candidates []error
		expected   int
	}{
		{name: "NoFullMatch", err: ErrTest, candidates: candidates, expected: 1},
		{name: "Matches", err: fmt.Errorf("%w %w", ErrTest, ErrAnother), candidates: candidates, expected: 2},
		{name: "MatchesJoined", err: errors.Join(ErrTest, ErrAnother), candidates: candidates, expected: 2},
		{name: "NoMatch", err: ErrYetAnother, candidates: candidates, expected: 0},
		{name: "EmptyCandidates", err: ErrTest, candidates: []error{}, expected: 0},
		{name: "NilError", err: nil, candidates: candidates, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errs.CountMatchingErrors(tt.err, tt.candidates))
		})
	}
}

func TestMapperTransform(t *testing.T) {
	mapper := errs.NewMapper(500,
		errs.Rule[int]{Match: []error{errA}, Exposed: 400},
		errs.Rule[int]{Match: []error{errA, errB}, Exposed: 409},
		errs.Rule[int]{Match: []error{errC}, Exposed: 404},
		errs.Rule[int]{Match: []error{errC}, Exposed: 410},
	)

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "single match", err: errA, expected: 400},
		{name: "longest chain wins", err: errs.Wrap(errA, errB), expected: 409},
		{name: "first declared wins ties", err: errC, expected: 404},
		{name: "partial rule is skipped", err: errs.Wrap(errB, ErrTest), expected: 500},
		{name: "fallback", err: ErrYetAnother, expected: 500},
		{name: "nil", err: nil, expected: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapper.Transform(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Equal(t, ErrTest, errs.Wrap(ErrTest, nil))

	err := errs.Wrap(ErrTest, ErrAnother)
	assert.That(t, errors.Is(err, ErrTest))
	assert.That(t, errors.Is(err, ErrAnother))

	err = errs.Wrapf(ErrTest, "detail")
	assert.That(t, errors.Is(err, ErrTest))
	assert.Equal(t, "test error: detail", err.Error())
}
