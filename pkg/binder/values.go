package binder

import (
	"fmt"
	"net/http"
)

// Path binds `path:"name"` fields using extractor, e.g. chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}
		return bindToStruct(v, "path", func(name string) []string {
			if value := extractor(r, name); value != "" {
				return []string{value}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}

// Query binds `query:"name"` fields from the URL query string.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		return bindToStruct(v, "query", func(name string) []string {
			return values[name]
		}, ErrFailedToParseQuery)
	}
}

// Header binds `header:"Name"` fields from request headers. Names are
// canonicalized the way net/http does.
func Header() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "header", r.Header.Values, ErrFailedToParseHeader)
	}
}
