// Package codec turns venue frames into bytes and back.
//
// A Frame is a template id plus a flat field map. The plants only ever look
// at frames through this package, so the wire format can change without
// touching session logic. ProtoCodec is the production implementation: each
// frame travels as a protobuf Struct message.
package codec
