package constants

import "strings"

// Format is the canonical document format tag carried on a Document.
type Format string

// Stable values (store these exact strings in run records).
const (
	FormatPDF      Format = "PDF"
	FormatDOCX     Format = "DOCX"
	FormatODT      Format = "ODT"
	FormatPPTX     Format = "PPTX"
	FormatXLSX     Format = "XLSX"
	FormatCSV      Format = "CSV"
	FormatTXT      Format = "TXT"
	FormatMarkdown Format = "MD"
	FormatHTML     Format = "HTML"
	FormatImage    Format = "IMAGE"
	FormatUnknown  Format = "UNKNOWN"
)

// formatByExtension maps normalized file extensions to formats.
var formatByExtension = map[string]Format{
	"pdf":      FormatPDF,
	"docx":     FormatDOCX,
	"odt":      FormatODT,
	"pptx":     FormatPPTX,
	"xlsx":     FormatXLSX,
	"csv":      FormatCSV,
	"txt":      FormatTXT,
	"text":     FormatTXT,
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"html":     FormatHTML,
	"htm":      FormatHTML,
	"png":      FormatImage,
	"jpg":      FormatImage,
	"jpeg":     FormatImage,
	"tif":      FormatImage,
	"tiff":     FormatImage,
	"bmp":      FormatImage,
	"gif":      FormatImage,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatForExtension resolves a file extension to a Format.
// The second return is false when the extension is not recognized.
func FormatForExtension(ext string) (Format, bool) {
	f, ok := formatByExtension[NormalizeExt(ext)]
	if !ok {
		return FormatUnknown, false
	}
	return f, true
}

// ParseFormat canonicalizes a declared format string ("pdf", ".docx", "DOCX").
func ParseFormat(s string) (Format, bool) {
	if s == "" {
		return FormatUnknown, false
	}
	up := strings.ToUpper(strings.TrimSpace(s))
	switch Format(up) {
	case FormatPDF, FormatDOCX, FormatODT, FormatPPTX, FormatXLSX, FormatCSV,
		FormatTXT, FormatMarkdown, FormatHTML, FormatImage:
		return Format(up), true
	}
	// fall back to extension-style input
	return FormatForExtension(s)
}
