package configkey

import (
	"bytes"
	"encoding/json"
	"iter"
)

// RenderKeys renders keys as an indented JSON array.
func RenderKeys(keys iter.Seq[string]) ([]byte, error) {
	list := []string{}
	for key := range keys {
		list = append(list, key)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// RenderDump renders entries as an indented JSON object, keeping the order of the sequence.
func RenderDump(entries iter.Seq2[string, string]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")

	first := true
	for key, value := range entries {
		if !first {
			buf.WriteString(",")
		}
		first = false
		buf.WriteString("\n    ")
		if err := writeString(&buf, key); err != nil {
			return nil, err
		}
		buf.WriteString(": ")
		if err := writeString(&buf, value); err != nil {
			return nil, err
		}
	}

	if !first {
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// writeString appends s as a JSON string without escaping <, > and &
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
