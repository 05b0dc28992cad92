package parser

import "errors"

// ErrNoVocabulary is returned when a data row is consumed before any
// "events:" header was seen (spec §7, ParseError::NoVocabulary).
var ErrNoVocabulary = errors.New("parser: data row before events: header")

// ErrInputTooLarge is returned when the input stream exceeds the
// caller-configured size cap (spec §7, ParseError::InputTooLarge).
var ErrInputTooLarge = errors.New("parser: input exceeds configured size cap")
