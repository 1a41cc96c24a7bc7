package extract

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
)

// Detect resolves the document format: declared tag first, then file
// extension, then content sniffing. It fails with ErrUnsupportedFormat
// when nothing matches a registered handler.
func (e *Extractor) Detect(filename string, payload []byte, declared constants.Format) (constants.Format, error) {
	if declared != "" && declared != constants.FormatUnknown {
		return declared, nil
	}
	if ext := filepath.Ext(filename); ext != "" {
		if f, ok := constants.FormatForExtension(ext); ok {
			// zip-based formats share an extension-free magic, so trust
			// the extension only when the payload agrees
			if f != sniffFormat(payload) && isZipContainer(payload) {
				if zf, ok := sniffZipFormat(payload); ok {
					return zf, nil
				}
			}
			return f, nil
		}
		return constants.FormatUnknown, common.UnsupportedFormatError(constants.NormalizeExt(ext))
	}

	if f := sniffFormat(payload); f != constants.FormatUnknown {
		return f, nil
	}
	return constants.FormatUnknown, common.UnsupportedFormatError("unknown")
}

// sniffFormat inspects magic bytes.
func sniffFormat(payload []byte) constants.Format {
	switch {
	case bytes.HasPrefix(payload, []byte("%PDF-")):
		return constants.FormatPDF
	case bytes.HasPrefix(payload, []byte{0x89, 'P', 'N', 'G'}):
		return constants.FormatImage
	case bytes.HasPrefix(payload, []byte{0xFF, 0xD8, 0xFF}):
		return constants.FormatImage // JPEG
	case bytes.HasPrefix(payload, []byte("GIF8")):
		return constants.FormatImage
	case bytes.HasPrefix(payload, []byte("BM")):
		return constants.FormatImage // BMP
	case bytes.HasPrefix(payload, []byte{'I', 'I', 0x2A, 0x00}),
		bytes.HasPrefix(payload, []byte{'M', 'M', 0x00, 0x2A}):
		return constants.FormatImage // TIFF
	case isZipContainer(payload):
		if f, ok := sniffZipFormat(payload); ok {
			return f
		}
		return constants.FormatUnknown
	case looksLikeHTML(payload):
		return constants.FormatHTML
	case looksLikeText(payload):
		return constants.FormatTXT
	}
	return constants.FormatUnknown
}

func isZipContainer(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte{'P', 'K', 0x03, 0x04})
}

// sniffZipFormat opens the archive and keys on well-known member names.
func sniffZipFormat(payload []byte) (constants.Format, bool) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return constants.FormatUnknown, false
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			return constants.FormatDOCX, true
		case f.Name == "xl/workbook.xml":
			return constants.FormatXLSX, true
		case strings.HasPrefix(f.Name, "ppt/slides/"):
			return constants.FormatPPTX, true
		case f.Name == "mimetype" || f.Name == "content.xml":
			return constants.FormatODT, true
		}
	}
	return constants.FormatUnknown, false
}

func looksLikeHTML(payload []byte) bool {
	head := payload
	if len(head) > 512 {
		head = head[:512]
	}
	low := strings.ToLower(string(head))
	return strings.Contains(low, "<!doctype html") || strings.Contains(low, "<html")
}

// looksLikeText accepts valid UTF-8 with no NUL bytes in the head.
func looksLikeText(payload []byte) bool {
	head := payload
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.IndexByte(head, 0x00) >= 0 {
		return false
	}
	// a rune may be cut at the window edge; trim up to three tail bytes
	for i := 0; i < 4 && len(head) > 0; i++ {
		if utf8.Valid(head) {
			return true
		}
		head = head[:len(head)-1]
	}
	return false
}
