package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"pkt.systems/httptxn/xid"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// XidView is the structured rendering of an Xid.
type XidView struct {
	Xid             string `json:"xid" yaml:"xid"`
	FormatID        int32  `json:"format_id" yaml:"format_id"`
	GlobalID        string `json:"global_id" yaml:"global_id"`
	BranchQualifier string `json:"branch_qualifier" yaml:"branch_qualifier"`
}

func viewXid(id xid.Xid) XidView {
	return XidView{
		Xid:             id.String(),
		FormatID:        id.FormatID(),
		GlobalID:        hex.EncodeToString(id.GlobalID()),
		BranchQualifier: hex.EncodeToString(id.BranchQualifier()),
	}
}

// render writes v as JSON or YAML, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case outputText:
		return text(w)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
