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

// Package contract checks that a ledger satisfies the aggregation rules
// the pipeline relies on.
//
// After every per-crate stage, each repository tally must agree with the
// crate records beneath it:
//
//   - failures equal the number of failed crates for that metric
//   - a tally with no failures sums the values of its crates
//   - a failed tally carries no sum
//   - the crate count matches the crate keys under the repository
//
//	for _, v := range contract.ValidateLedger(l) {
//	    fmt.Println(v)
//	}
//
// `cratescan status --check` runs these checks and exits non-zero when any
// fail.
package contract
