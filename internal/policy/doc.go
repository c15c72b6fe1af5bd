// Package policy checks block payloads against a schema before they are
// proposed. A policy sees parsed triples, never raw text.
//
// The CUE policy unifies every triple with a #Triple definition and the
// payload summary with a #Graph definition:
//
//	#Triple: {
//		predicate: =~"^http://example.org/"
//		if object_kind == "literal" {
//			lang: "" | "en"
//		}
//	}
//	#Graph: statements: <=100
//
// Both definitions are closed over the fields listed in Fields, so schemas
// only need to constrain the fields they care about.
package policy
