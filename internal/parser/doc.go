// Package parser turns free-form release filenames into domain.MovieMeta.
//
// Tokens are recognised against ordered vocabularies and blanked out of a
// working copy of the name as they are claimed: year, resolution, codec,
// audio format and bitrate, source quality, size, subtitle and proper/repack
// markers, then languages. Whatever precedes the first claimed token is the
// title. Parsing never fails; unrecognised fields keep their zero value.
package parser
