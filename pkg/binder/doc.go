// Package binder fills request structs from the parts of an HTTP request.
//
// Each binder reads one source and only touches fields tagged for it.
// Untagged embedded structs are walked, so a JSON body type can be embedded
// next to path and header fields:
//
//	type publishInput struct {
//	    ChannelID string `path:"id" json:"-"`
//	    ClientID  string `header:"X-Client-ID" json:"-"`
//	    notify.PublishRequest
//	}
//
// JSON decodes the body strictly (unknown fields and trailing data are
// rejected) and reports ErrBinderNotApplicable for an empty body, so an
// optional body can be chained with the other binders. Path takes an
// extractor such as chi.URLParam.
//
// Supported field kinds for Path, Query and Header are strings, integers,
// floats, bools, pointers to those and slices of them. Slice values may be
// repeated or comma separated.
package binder
