package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// LoadOpenAPI parses and validates an OpenAPI 3 document.
func LoadOpenAPI(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// OpenAPIValidator rejects requests whose parameters or body do not match doc.
// Paths the document does not describe pass through untouched. Authentication
// is left to the auth middleware.
func OpenAPIValidator(doc *openapi3.T, base *transport.BaseHandler) (func(http.Handler) http.Handler, error) {
	// paths carry their full prefix, so hosts in servers must not take part in matching
	routed := *doc
	routed.Servers = nil
	router, err := legacy.NewRouter(&routed)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					ExcludeRequestBody: strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/"),
					MultiError:         false,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				base.HandleError(w, r, validationError(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func validationError(err error) *internal.AppError {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		field := ""
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		} else if reqErr.RequestBody != nil {
			field = "body"
		}
		if field != "" {
			return internal.NewValidationFieldError(field, reqErr.Error(), internal.ErrCodeInvalidRequest)
		}
	}
	var routeErr *routers.RouteError
	if errors.As(err, &routeErr) {
		return internal.NewValidationError(routeErr.Error(), internal.ErrCodeInvalidRequest)
	}
	return internal.NewValidationError(err.Error(), internal.ErrCodeInvalidRequest)
}
