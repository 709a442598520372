// Package core is the CSV escape and sanitize engine.
//
// It turns already-decoded, possibly malformed delimiter-separated text into
// one of three outputs, selected by [Mode]:
//
//   - escape: the table re-rendered byte-precisely under an output profile.
//   - sanitize: the table repaired to a uniform width, then rendered the same way.
//   - analyze: a diagnostic report; the text is returned with only its line
//     endings normalized.
//
// The package has no I/O, logging or shared mutable state. [Process] is a
// deterministic function of its [Request], so callers may run any number of
// invocations in parallel.
//
// # Stages
//
// The building blocks are usable on their own:
//
//	[Parse]             text -> Table (quote-aware, never fails)
//	[DetectDelimiter]   sample lines -> one of , ; \t |
//	[AnalyzeStructure]  Table -> ColumnStats + COLUMN_COUNT_MISMATCH issues
//	[Sanitize]          Table -> uniform Table + fix issues
//	[NewProfileBuilder] profile name + overrides -> ProfileConfig
//	[Render]            Table + ProfileConfig -> text
//
// # Profiles
//
// Four profiles are built in: excel, db_rfc4180, ai_safety and custom. See
// [ProfileDefaults] for their settings and [OverrideKeys] for the fields a
// request may override.
//
// # Errors
//
// The only error [Process] returns is a [ConfigurationError], raised before
// any parsing. Structural problems in the data are never errors; they are
// reported in-band as [Issue] values.
package core
