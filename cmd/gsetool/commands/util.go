package commands

import (
	"bytes"
	"io"

	"github.com/marmos91/gse/internal/harness"
)

func readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pduRunID() string { return harness.RunID() }

func bytesReader(data []byte) *bytes.Reader { return bytes.NewReader(data) }
