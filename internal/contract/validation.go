// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kraklabs/cratescan/pkg/ledger"
)

// DefaultMaxViolations bounds the violations ValidateLedger reports.
const DefaultMaxViolations = 100

// MaxViolations returns the report bound, overridable with
// CRATESCAN_MAX_VIOLATIONS.
func MaxViolations() int {
	if v := os.Getenv("CRATESCAN_MAX_VIOLATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxViolations
}

// Violation is one disagreement between a repository and its crates.
type Violation struct {
	Repo   string        `json:"repo"`
	Metric ledger.Metric `json:"metric,omitempty"`
	Want   int           `json:"want"`
	Got    int           `json:"got"`
	Field  string        `json:"field"`
}

func (v Violation) String() string {
	if v.Metric == "" {
		return fmt.Sprintf("%s: %s = %d, want %d", v.Repo, v.Field, v.Got, v.Want)
	}
	return fmt.Sprintf("%s: %s.%s = %d, want %d", v.Repo, v.Metric, v.Field, v.Got, v.Want)
}

type expectation struct {
	crates   int
	failures map[ledger.Metric]int
	sums     map[ledger.Metric]int
}

// ValidateLedger recomputes every repository aggregate from the crate
// records and reports each mismatch, up to MaxViolations.
func ValidateLedger(l *ledger.Ledger) []Violation {
	expect := map[string]*expectation{}
	get := func(repo string) *expectation {
		e, ok := expect[repo]
		if !ok {
			e = &expectation{failures: map[ledger.Metric]int{}, sums: map[ledger.Metric]int{}}
			expect[repo] = e
		}
		return e
	}

	for _, key := range l.Keys() {
		rec, _ := l.Crate(key)
		e := get(ledger.RepoKey(key))
		e.crates++
		for _, m := range ledger.Metrics {
			c := m.Of(rec)
			switch {
			case c == nil:
			case c.Failed():
				e.failures[m]++
			default:
				e.sums[m] += c.Value
			}
		}
	}

	limit := MaxViolations()
	var out []Violation
	add := func(v Violation) bool {
		out = append(out, v)
		return len(out) < limit
	}

	for _, repo := range l.RepoKeys() {
		rec, _ := l.Repo(repo)
		e := get(repo)
		if rec.Crates != e.crates {
			if !add(Violation{Repo: repo, Field: "crates", Want: e.crates, Got: rec.Crates}) {
				return out
			}
		}
		for _, m := range ledger.Metrics {
			var got ledger.Tally
			if t := m.TallyOf(rec); t != nil {
				got = *t
			}
			wantSum := e.sums[m]
			if e.failures[m] > 0 {
				wantSum = 0
			}
			if got.Failures != e.failures[m] {
				if !add(Violation{Repo: repo, Metric: m, Field: "failures", Want: e.failures[m], Got: got.Failures}) {
					return out
				}
			}
			if got.Sum != wantSum {
				if !add(Violation{Repo: repo, Metric: m, Field: "sum", Want: wantSum, Got: got.Sum}) {
					return out
				}
			}
		}
	}
	return out
}
