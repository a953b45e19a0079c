package markov

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextSource supplies raw text by name.
type TextSource interface {
	Open(name string) (io.ReadCloser, error)
}

// FileSource reads text files from disk and converts them to UTF-8.
// Supported encodings: "utf8" (the default; a leading BOM is dropped),
// "cp437", "cp850", "iso-8859-1" and "windows-1252".
type FileSource struct {
	Encoding string
}

// NewFileSource returns a FileSource for the given encoding name.
func NewFileSource(enc string) (*FileSource, error) {
	if _, err := decoderFor(enc); err != nil {
		return nil, err
	}
	return &FileSource{Encoding: enc}, nil
}

// Open opens the file at path. A missing file yields an error matching
// fs.ErrNotExist.
func (s *FileSource) Open(path string) (io.ReadCloser, error) {
	decoder, err := decoderFor(s.Encoding)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open text source: %w", err)
	}
	return &decodedFile{
		Reader: transform.NewReader(file, decoder),
		file:   file,
	}, nil
}

type decodedFile struct {
	io.Reader
	file *os.File
}

func (d *decodedFile) Close() error {
	return d.file.Close()
}

func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(name) {
	case "", "utf8", "utf-8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "cp437":
		return charmap.CodePage437.NewDecoder(), nil
	case "cp850":
		return charmap.CodePage850.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}
