package strategy

import "fmt"

// MissingIndicatorError reports a reading a rule needed but the snapshot
// did not carry.
type MissingIndicatorError struct {
	Strategy string
	Family   string
	Field    string
}

func (e *MissingIndicatorError) Error() string {
	return fmt.Sprintf("strategy %s: missing indicator %s.%s", e.Strategy, e.Family, e.Field)
}

// reader pulls readings for one rule and keeps the first miss.
type reader struct {
	strategy string
	snap     snapshot
	err      *MissingIndicatorError
}

type snapshot interface {
	Series(family, field string) ([]float64, bool)
	Latest(family, field string) (float64, bool)
	Flag(family, field string) (bool, bool)
}

func (r *reader) miss(family, field string) {
	if r.err == nil {
		r.err = &MissingIndicatorError{Strategy: r.strategy, Family: family, Field: field}
	}
}

func (r *reader) latest(family, field string) float64 {
	v, ok := r.snap.Latest(family, field)
	if !ok {
		r.miss(family, field)
	}
	return v
}

func (r *reader) series(family, field string) []float64 {
	s, ok := r.snap.Series(family, field)
	if !ok {
		r.miss(family, field)
	}
	return s
}

func (r *reader) flag(family, field string) bool {
	b, ok := r.snap.Flag(family, field)
	if !ok {
		r.miss(family, field)
	}
	return b
}

// mean is the arithmetic mean of a non-empty series; 0 for an empty one.
func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}
