// Package chart defines the render request model for chartcn.
//
// A [Request] is the declarative description of a chart: its type, frame
// size, output format, theme and the free-form chart spec consumed by the
// client-side chart bundle. Requests are validated with
// [Request.ValidateAndSetDefaults] and treated as immutable afterwards;
// [Request.Apply] returns a modified copy instead of mutating the receiver.
//
// # Formats
//
// Three output classes are supported, each with a wire name:
//
//	raster   → png  (image/png)
//	vector   → svg  (image/svg+xml)
//	document → pdf  (application/pdf)
//
// [ParseFormat] accepts either spelling.
//
// # Overrides
//
// Saved configurations may be rendered with a restricted set of
// [Overrides] (format, width, height). Absent override fields keep the
// stored value.
package chart
