package protocol

const (
	placeholderKey = "_placeholder"
	placeholderNum = "num"
)

// placeholder is the JSON stand-in for one binary attachment.
type placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}

// takeBinary replaces every []byte inside v by a placeholder and appends the
// buffer to *attachments. Containers are copied, v is left untouched.
func takeBinary(v interface{}, attachments *[][]byte) interface{} {
	switch val := v.(type) {
	case []byte:
		*attachments = append(*attachments, val)
		return placeholder{Placeholder: true, Num: len(*attachments) - 1}
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, x := range val {
			out[i] = takeBinary(x, attachments)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, x := range val {
			out[k] = takeBinary(x, attachments)
		}
		return out
	}
	return v
}

// hasBinary reports whether takeBinary would find anything.
func hasBinary(v interface{}) bool {
	switch val := v.(type) {
	case []byte:
		return true
	case []interface{}:
		for _, x := range val {
			if hasBinary(x) {
				return true
			}
		}
	case map[string]interface{}:
		for _, x := range val {
			if hasBinary(x) {
				return true
			}
		}
	}
	return false
}

// fillPlaceholders swaps decoded placeholder objects for their attachment.
func fillPlaceholders(v interface{}, attachments [][]byte) (interface{}, error) {
	switch val := v.(type) {
	case []interface{}:
		for i, x := range val {
			nx, err := fillPlaceholders(x, attachments)
			if err != nil {
				return nil, err
			}
			val[i] = nx
		}
	case map[string]interface{}:
		if isPlaceholder, _ := val[placeholderKey].(bool); isPlaceholder {
			num, ok := val[placeholderNum].(float64)
			if !ok || num < 0 || int(num) >= len(attachments) || num != float64(int(num)) {
				return nil, ErrInvalidPlaceholder.F(int(num), len(attachments))
			}
			return attachments[int(num)], nil
		}
		for k, x := range val {
			nx, err := fillPlaceholders(x, attachments)
			if err != nil {
				return nil, err
			}
			val[k] = nx
		}
	}
	return v, nil
}
