// Package contribution evaluates the declarative contributions of
// extensions (actions and the menu items that show them) against the
// host's current context.
//
// Menu items and actions may carry a when-expression:
//
//	resource.language == go && !editor.readOnly
//	scheme in supportedSchemes || (selections > 0 && resource.path =~ /_test\.go$/)
//
// Operators, from loosest to tightest binding: ||, &&, unary !, then the
// comparisons ==, !=, =~ and in. A bare word on the right of == or != is
// a literal; elsewhere it names a context key. Keys that are not defined
// evaluate to false.
package contribution
