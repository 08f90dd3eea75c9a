// Package wire encodes and decodes INDI protocol messages.
//
// INDI is a stream of top-level XML elements with no framing and no
// enclosing document. Each element is one Message:
//   - getProperties asks for definitions
//   - def*Vector, set*Vector and new*Vector carry property vectors
//   - delProperty removes a vector or a whole device
//   - enableBLOB changes BLOB delivery for a client
//   - message carries free-form commentary
//
// # Encoding
//
// Encode writes attributes in a fixed order and puts each element value on
// its own line, matching what libindi emits:
//
//	<setNumberVector device="Telescope" name="EQUATORIAL_EOD_COORD" state="Ok" timeout="60" timestamp="2025-02-21T22:05:32">
//	    <oneNumber name="RA">
//	  5:30:00
//	    </oneNumber>
//	</setNumberVector>
//
// Timestamps keep millisecond precision when they carry a fractional
// second. Text values lose only the line framing on decode, so surrounding
// whitespace in a text element survives a round trip.
//
// # Decoding
//
// Decoder accepts arbitrary byte chunks through Feed and yields complete
// messages from Next. An element split across chunks stays buffered until
// it is complete. Malformed elements are reported as *DecodeError and
// skipped; the stream stays usable.
//
// # Optional Attributes
//
// A set message may omit state and timeout. The decoder records omissions
// in model.Vector.Absent so a merge can leave those fields unchanged.
package wire
