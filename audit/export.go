package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aureus-sentinel/bridge/types"
)

// Format is an audit export encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCEF   Format = "cef"
)

// Export writes every entry with Sequence >= since in the given format.
func Export(ctx context.Context, store Store, since uint64, format Format) ([]byte, error) {
	var buf bytes.Buffer
	err := store.Walk(ctx, since, func(entry types.AuditEntry) error {
		switch format {
		case FormatCEF:
			buf.WriteString(toCEF(entry))
		default:
			raw, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			buf.Write(raw)
		}
		buf.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return buf.Bytes(), nil
}

// toCEF renders one entry as a Common Event Format line: a fixed header
// followed by seq/act/end/hash/prevHash extension fields, mirroring the
// flat-fields-from-a-structured-record idiom used for compliance exports
// elsewhere in this codebase.
func toCEF(entry types.AuditEntry) string {
	return fmt.Sprintf(
		"CEF:0|aureus-sentinel|bridge|1.0|%s|%s|3|seq=%d act=%s end=%d hash=%s prevHash=%s",
		entry.Action, entry.Action, entry.Sequence, entry.Action,
		entry.Timestamp.UnixMilli(), entry.Hash, entry.PreviousHash,
	)
}
