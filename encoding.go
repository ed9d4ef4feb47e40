package chartscan

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// TextEncoding is the character encoding detected for a chart file.
type TextEncoding string

const (
	EncodingUTF8    TextEncoding = "utf-8"
	EncodingUTF16LE TextEncoding = "utf-16le"
	EncodingUTF16BE TextEncoding = "utf-16be"
)

// DetectEncoding sniffs a byte-order mark. Anything without a UTF-16 BOM is
// treated as UTF-8.
func DetectEncoding(data []byte) TextEncoding {
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			return EncodingUTF16LE
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return EncodingUTF16BE
		}
	}
	return EncodingUTF8
}

// DecodeText converts raw chart bytes to a string using the detected
// encoding, stripping any byte-order mark.
func DecodeText(data []byte) (string, error) {
	switch DetectEncoding(data) {
	case EncodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decoding utf-16le chart: %w", err)
		}
		return string(out), nil
	case EncodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decoding utf-16be chart: %w", err)
		}
		return string(out), nil
	default:
		// Strip a UTF-8 BOM if present; the scanner works on plain text.
		if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
			data = data[3:]
		}
		return string(data), nil
	}
}
