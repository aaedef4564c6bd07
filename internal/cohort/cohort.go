// Package cohort defines the two country cohorts users are matched across.
// Matching is strictly cross-cohort: a KR requester is only ever paired
// with a JP waiter and vice versa.
package cohort

import "fmt"

// Cohort is one of the two supported countries.
type Cohort string

const (
	KR Cohort = "KR"
	JP Cohort = "JP"
)

// Parse validates a raw country string from the wire.
func Parse(s string) (Cohort, error) {
	switch Cohort(s) {
	case KR:
		return KR, nil
	case JP:
		return JP, nil
	}
	return "", fmt.Errorf("cohort: invalid country %q (only KR or JP allowed)", s)
}

// Opposite returns the cohort this one is matched against.
func (c Cohort) Opposite() Cohort {
	if c == KR {
		return JP
	}
	return KR
}

func (c Cohort) String() string {
	return string(c)
}
