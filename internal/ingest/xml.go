package ingest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// XMLImporter handles .xml files.
type XMLImporter struct{}

// CanHandle returns true for XML file extensions.
func (x *XMLImporter) CanHandle(name string) bool {
	return hasExt(name, ".xml")
}

// Text joins the document's character data with spaces. Malformed XML is
// read as plain text instead.
func (x *XMLImporter) Text(data []byte) (string, error) {
	text, err := xmlCharData(data)
	if err != nil {
		return decodeText(data), nil
	}
	return text, nil
}

func xmlCharData(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var parts []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(xml.CharData); ok {
			if s := strings.TrimSpace(string(cd)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " "), nil
}
