// Package vm implements the Weft virtual machine.
//
// This package contains:
//   - The tagged Variable value model and its operators
//   - The 32-bit cell bytecode format and CodeWriter
//   - Statement and expression dispatch loops with call frames
//   - Host notifications and intrinsic functions
//   - CBOR program images and a disassembler
package vm
