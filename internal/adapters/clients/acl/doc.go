// Package acl is the anti-corruption layer between the remote posts API
// and the quote domain.
//
// The remote side knows nothing about quotes. It stores posts with a
// numeric id, a title and a body. [QuoteSource] reads a post's title as
// the quote text and its body as the author, assigns every fetched record
// the configured category, and parses an optional updatedAt timestamp.
// Nothing outside this package sees a post.
//
// # Errors
//
// Every failure leaves this package as a domain error:
//   - 404 → [domain.ErrNotFound]
//   - 409 → [domain.ErrConflict]
//   - 400/422 → [domain.ErrValidation]
//   - 401/403 → [domain.ErrForbidden]
//   - 5xx, 429, transport errors, open circuit, undecodable bodies → [domain.ErrUnavailable]
//
// The sync engine treats [domain.ErrUnavailable] as a network failure: it
// logs it and leaves the local collection untouched.
//
// # Building blocks
//
//   - [BaseAdapter]: GET/POST with error mapping, embedded by [QuoteSource]
//   - [MapHTTPError], [MapRemoteCode], [ReadRemoteError]: error translation
//   - [DecodeResponse], [TranslateSlice]: body decoding and DTO translation
package acl
