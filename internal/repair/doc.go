// Package repair applies the auto-fixable recommendations of an integrity
// report to a ledger.
//
// A repair batch runs under the ledger's write lock inside one atomic
// operation. A storage error restores the backup and fails every issue in
// the batch; otherwise the batch commits and a single fresh validation pass
// is run. Repair never loops: issues that survive the pass are reported,
// not retried.
package repair
