// Package model implements the INDI property data model.
//
// # Property Vectors
//
// A device exposes named property vectors. Each vector is one of five kinds
// and carries an ordered list of elements of that kind:
//
//	Device (CCD Simulator)
//	├── CONNECTION        Switch  OneOfMany  rw  [CONNECT, DISCONNECT]
//	├── DRIVER_INFO       Text               ro  [DRIVER_NAME, DRIVER_EXEC, ...]
//	├── CCD_EXPOSURE      Number             rw  [CCD_EXPOSURE_VALUE]
//	├── CCD_STATUS        Light                  [...]
//	└── CCD1              BLOB               ro  [CCD1]
//
// Vector is a closed tagged variant: Kind selects which Element fields are
// meaningful, and every consumer switches over Kind.
//
// # Lifecycle
//
// A vector is created by a def, updated authoritatively by a set, requested
// to change by a new, and removed by a del. Validation covers the two
// update paths:
//   - ValidateDef checks definitions
//   - MergeSet merges an authoritative set delta
//   - Validator.ValidateNew checks a client request against current state
//
// # Switch Rules
//
// After any accepted new, a OneOfMany vector has exactly one element On,
// an AtMostOne vector at most one, and an AnyOfMany vector at least one.
// Violations are rejected, never corrected.
//
// # Expiry
//
// A vector with a non-zero Timeout that is not refreshed within Timeout
// seconds is expired. Expired is the only autonomous transition; the
// registry turns it into an Alert state.
//
// # Number Formats
//
// FormatNumber and ParseNumber handle printf-style formats and the
// sexagesimal %<w>.<f>m form used for coordinates.
package model
