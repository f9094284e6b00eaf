package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	// sniffLen bounds how much of the file is sampled for detection.
	sniffLen = 256 << 10

	// confidenceThreshold is the chardet confidence (0-100) below which the
	// detected charset is not trusted and the fallback chain runs instead.
	confidenceThreshold = 70

	// fallbackValidationRows is how many rows each fallback candidate must
	// parse cleanly before it wins.
	fallbackValidationRows = 5
)

// Encoding pairs a reported charset name with the decoder for it. A nil
// decoder means the input is already UTF-8 and is passed through as is.
type Encoding struct {
	Name    string
	decoder encoding.Encoding
}

// NewReader wraps r so its bytes come out as UTF-8.
func (e Encoding) NewReader(r io.Reader) io.Reader {
	if e.decoder == nil {
		return r
	}
	return e.decoder.NewDecoder().Reader(r)
}

// decodersByName maps the charset names chardet reports to decoders.
// ISO-8859-1 detections frequently mean Windows-1252 in practice, but the
// detector's word is taken here; the fallback chain covers the rest.
var decodersByName = map[string]encoding.Encoding{
	"UTF-8":        nil,
	"ISO-8859-1":   charmap.ISO8859_1,
	"ISO-8859-15":  charmap.ISO8859_15,
	"windows-1252": charmap.Windows1252,
	"UTF-16LE":     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"UTF-16BE":     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
}

// fallbackChain is tried in order when detection is untrusted. The last
// entry maps every byte to a character, so the chain cannot fail and a file
// is never rejected on encoding grounds alone.
var fallbackChain = []Encoding{
	{Name: "UTF-8"},
	{Name: "windows-1252", decoder: charmap.Windows1252},
	{Name: "ISO-8859-1", decoder: charmap.ISO8859_1},
}

// DetectEncoding determines the text encoding of a delimited file by
// statistical detection over a bounded prefix, with a deterministic fallback
// chain when confidence is low or the detected charset is unusable. ASCII
// detections are reported as UTF-8, its compatible superset.
func DetectEncoding(path string, log *slog.Logger) (Encoding, error) {
	f, err := os.Open(path)
	if err != nil {
		return Encoding{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	prefix := make([]byte, sniffLen)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Encoding{}, fmt.Errorf("read %s: %w", path, err)
	}
	prefix = prefix[:n]

	if res, derr := chardet.NewTextDetector().DetectBest(prefix); derr == nil {
		name := res.Charset
		if name == "ISO-8859-1" && looksLikeASCII(prefix) {
			name = "UTF-8"
		}
		log.Info("detected encoding", "charset", name, "confidence", res.Confidence)

		if res.Confidence >= confidenceThreshold {
			if dec, ok := decodersByName[name]; ok {
				return Encoding{Name: name, decoder: dec}, nil
			}
			log.Warn("no decoder for detected charset, trying fallbacks", "charset", name)
		} else {
			log.Warn("low confidence encoding detection, trying fallbacks",
				"charset", name, "confidence", res.Confidence)
		}
	}

	for _, cand := range fallbackChain {
		if validateEncoding(prefix, cand) {
			log.Info("fallback encoding selected", "charset", cand.Name)
			return cand, nil
		}
	}

	// Unreachable in practice: ISO-8859-1 accepts any byte sequence.
	last := fallbackChain[len(fallbackChain)-1]
	return last, nil
}

// looksLikeASCII reports whether every sampled byte is 7-bit.
func looksLikeASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// validateEncoding decodes the prefix with the candidate and checks that a
// few rows parse as CSV without decode damage.
func validateEncoding(prefix []byte, e Encoding) bool {
	decoded, err := io.ReadAll(e.NewReader(bytes.NewReader(prefix)))
	if err != nil {
		return false
	}
	if e.decoder == nil && !utf8.Valid(prefix) {
		return false
	}
	if strings.ContainsRune(string(decoded), utf8.RuneError) {
		return false
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	for i := 0; i < fallbackValidationRows; i++ {
		if _, err := r.Read(); err != nil {
			// A trailing partial row is expected in a truncated prefix.
			return err == io.EOF || i > 0
		}
	}
	return true
}
