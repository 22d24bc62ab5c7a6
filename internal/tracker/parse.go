package tracker

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseRawStatus decodes an untrusted status payload.
//
// Fields are decoded independently: a field with an unexpected shape is
// dropped instead of failing the whole payload, numbers may be encoded as
// strings, and anything that is not a JSON object yields the zero RawStatus.
func ParseRawStatus(data []byte) RawStatus {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawStatus{}
	}

	raw := RawStatus{
		Status:                 decodeString(fields["status"]),
		Error:                  decodeString(fields["error"]),
		TotalOrchestrationTime: decodeNumber(fields["totalOrchestrationTime"]),
	}
	if raw.Error == "" {
		raw.Error = decodeString(fields["message"])
	}

	var items []json.RawMessage
	if len(fields["phaseResults"]) > 0 && json.Unmarshal(fields["phaseResults"], &items) == nil {
		for _, item := range items {
			var pf map[string]json.RawMessage
			if json.Unmarshal(item, &pf) != nil || pf == nil {
				continue
			}
			raw.PhaseResults = append(raw.PhaseResults, PhaseResult{
				Name:      decodeString(pf["name"]),
				Status:    decodeString(pf["status"]),
				ElapsedMs: decodeNumber(pf["elapsedMs"]),
			})
		}
	}

	return raw
}

func decodeString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(data, &s) != nil {
		return ""
	}
	return s
}

func decodeNumber(data json.RawMessage) *float64 {
	if len(data) == 0 {
		return nil
	}

	var f float64
	if json.Unmarshal(data, &f) != nil {
		var s string
		if json.Unmarshal(data, &s) != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
