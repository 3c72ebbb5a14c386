// Package hessian encodes and decodes values in the Hessian 2 binary
// serialization format.
//
// A Value is a scalar (Null, Bool, Int32, Int64, Double, Date, String,
// Binary) or a composite (*List, *Map, *Object). Composites are compared by
// pointer: a composite reached twice in one session is written once and
// then as a back-reference, so shared and cyclic graphs survive a round
// trip as the same Go pointer graph.
//
// Encoder and Decoder keep three session tables (references, class
// definitions and type names) that grow in first-encounter order on both
// sides. Marshal and Unmarshal run one value in a fresh session; long-lived
// streams call Reset between messages.
//
// The Encoder and Decoder also expose the token-level calls
// (WriteListBegin, WriteObjectBegin, ReadListStart, BeginInstance and so
// on) that the mapper and rpc packages build on.
package hessian
