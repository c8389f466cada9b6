// Package schema validates node parameter bags.
//
// Each node template declares a Schema mapping parameter names to a Type and a
// required flag. Parameters are validated when a node is created and again on
// every parameter patch, so a node never carries a bag its template would reject.
//
// Basic usage:
//
//	s := schema.Schema{
//	    "genre":     {Type: schema.Enum("fantasy", "noir"), Required: true},
//	    "wordCount": {Type: schema.IntRange(100, 20000)},
//	    "tags":      {Type: schema.Slice(schema.String())},
//	}
//
//	if err := schema.Validate(s, params); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        // handle each field failure
//	    }
//	}
//
// Custom validators can be registered for domain-specific checks:
//
//	hexColor := schema.Custom("hexColor", func(v any) error { ... })
package schema
