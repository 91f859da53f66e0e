package output

import (
	"encoding/json"
	"io"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// RenderJSON writes the snapshot as indented JSON.
func RenderJSON(w io.Writer, snap types.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
