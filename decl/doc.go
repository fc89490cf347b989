// Package decl reads binding declarations from HCL files and WIT
// signatures.
//
// A declaration file holds struct and function blocks:
//
//	struct "point" {
//	  field "x" { type = "int" }
//	  field "y" { type = "int" }
//	}
//
//	function "scale" {
//	  entrypoint = "scale_point"
//	  result     = "struct.point"
//	  allocator  = "required"
//
//	  param "p" { type = "struct.point" }
//	  param "k" { type = "int" }
//	}
//
//	function "sum" {
//	  result = "int"
//	  param "xs" {
//	    type       = "int"
//	    array_size = 4
//	  }
//	}
//
//	function "version" {
//	  result  = "int"
//	  default = 1
//	}
//
// Types are C scalar names resolved against the target data model,
// declared structures as struct.NAME, and pointers as pointer or
// pointer(T). A field with count is a fixed-size array member. A param
// with array, array_size, wide, inout or nullable is passed as an array
// of its type. A default makes the function tolerant of a missing symbol.
package decl
