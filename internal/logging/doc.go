// Package logging builds the slog loggers used throughout scanwatch and
// defines the canonical structured field names shared by every component.
package logging
