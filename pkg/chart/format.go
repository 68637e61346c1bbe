package chart

import "github.com/matzehuels/chartcn/pkg/errors"

// Format is an output format, identified by its wire name.
type Format string

// Output formats.
const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
)

// Output classes accepted as aliases by ParseFormat.
const (
	ClassRaster   = "raster"
	ClassVector   = "vector"
	ClassDocument = "document"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[Format]bool{
	FormatPNG: true,
	FormatSVG: true,
	FormatPDF: true,
}

var contentTypes = map[Format]string{
	FormatPNG: "image/png",
	FormatSVG: "image/svg+xml",
	FormatPDF: "application/pdf",
}

var classes = map[Format]string{
	FormatPNG: ClassRaster,
	FormatSVG: ClassVector,
	FormatPDF: ClassDocument,
}

// ParseFormat resolves a wire name (png, svg, pdf) or an output class
// (raster, vector, document) to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case string(FormatPNG), ClassRaster:
		return FormatPNG, nil
	case string(FormatSVG), ClassVector:
		return FormatSVG, nil
	case string(FormatPDF), ClassDocument:
		return FormatPDF, nil
	}
	return "", errors.New(errors.ErrCodeValidation, "invalid format: %q (must be one of: png, svg, pdf)", s)
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(f Format) error {
	if !ValidFormats[f] {
		return errors.New(errors.ErrCodeValidation, "invalid format: %q (must be one of: png, svg, pdf)", f)
	}
	return nil
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Extension returns the file extension of the format, without a dot.
func (f Format) Extension() string {
	return string(f)
}

// Class returns the output class (raster, vector or document).
func (f Format) Class() string {
	return classes[f]
}
