package http

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Contract is the parsed OpenAPI document the server validates requests against.
type Contract struct {
	doc    *openapi3.T
	router routers.Router
}

// LoadContract parses and validates the embedded OpenAPI document.
func LoadContract() (*Contract, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &Contract{doc: doc, router: router}, nil
}

// Version is the API version declared by the document.
func (c *Contract) Version() string {
	if c.doc.Info == nil {
		return "unknown"
	}
	return c.doc.Info.Version
}

// Document returns the parsed document.
func (c *Contract) Document() *openapi3.T {
	return c.doc
}

// Middleware rejects requests that do not match their documented operation
// with 400. Paths outside the document pass through untouched.
func (c *Contract) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := c.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				MultiError: true,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "RequestInvalid"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
