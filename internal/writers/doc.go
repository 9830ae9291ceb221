// Package writers turns run results into serialized summaries.
//
// Design:
//   - Writers own all presentation knowledge (TSV, JSON, JSONL).
//   - The runner stays domain-only; output holds the conversions.
//   - JSON/JSONL go through pkg/api (v1) for a stable wire format.
package writers
