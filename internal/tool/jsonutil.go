package tool

import (
	"bytes"
	"encoding/json"
	"io"
)

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
