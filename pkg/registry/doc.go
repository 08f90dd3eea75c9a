// Package registry is the authoritative store of INDI device state.
//
// Devices are created by their first def and own an ordered set of property
// vectors. Every mutation goes through Registry:
//
//	ApplyDef  define or redefine a vector
//	ApplySet  merge an authoritative update
//	ApplyDel  remove a vector, or a whole device
//	Expire    move timed-out vectors to Alert
//
// Each committed mutation yields a Change carrying a revision drawn from a
// registry-wide counter, so revisions increase for every vector and across
// the registry. Changes are handed to the Publisher while the device lock is
// held, which makes routing order equal commit order for each device.
// Mutations of different devices proceed in parallel.
//
// A rejected mutation leaves state untouched.
package registry
