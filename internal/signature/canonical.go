package signature

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MarshalCanonical encodes a value deterministically. Mapping keys are
// written in lexicographic order, lists keep their order, `", "` separates
// elements and `": "` follows keys, and byte slices become base64 strings.
// Identical logical content always yields an identical output string.
func MarshalCanonical(v interface{}) (string, error) {
	var sb strings.Builder
	if err := encodeCanonical(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func encodeCanonical(sb *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			encodeString(sb, k)
			sb.WriteString(": ")
			if err := encodeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := encodeCanonical(sb, elem); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case []string:
		elems := make([]interface{}, len(val))
		for i, s := range val {
			elems[i] = s
		}
		return encodeCanonical(sb, elems)
	case string:
		encodeString(sb, val)
	case []byte:
		encodeString(sb, base64.StdEncoding.EncodeToString(val))
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case int:
		sb.WriteString(strconv.Itoa(val))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint16:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case json.Number:
		sb.WriteString(val.String())
	case float64:
		// records that have round-tripped through encoding/json carry
		// their integers as float64
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			sb.WriteString(strconv.FormatInt(int64(val), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		}
	default:
		return fmt.Errorf("cannot canonicalize value of type %T", v)
	}
	return nil
}

// encodeString writes s as a JSON string. encoding/json handles the escaping;
// HTML escaping is disabled as it would diverge from the canonical form.
func encodeString(sb *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	sb.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}
