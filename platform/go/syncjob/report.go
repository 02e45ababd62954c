package syncjob

import "time"

// Report summarizes a single sync run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Tenants    []TenantOutcome
}

// TenantOutcome records the per-kind results for one tenant.
type TenantOutcome struct {
	Tenant string
	Kinds  []KindOutcome
}

// KindOutcome records the result of a single save attempt.
type KindOutcome struct {
	Kind  string
	Saved bool
	Err   error
}

// Failures counts the save attempts that returned an error.
func (r Report) Failures() int {
	n := 0
	for _, t := range r.Tenants {
		for _, k := range t.Kinds {
			if k.Err != nil {
				n++
			}
		}
	}
	return n
}
