// Package observability provides OpenTelemetry metrics exported in the
// Prometheus format.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrWorkflow = "workflow"
	attrSuccess  = "success"
	attrOutcome  = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// /v1/jobs/abc123 -> /v1/jobs/{jobId}
	return attribute.String(attrPath, normalizePath(path))
}

// statusAttr groups HTTP codes (2xx, 4xx, 5xx). Code 0 means no response.
func statusAttr(code int) attribute.KeyValue {
	if code <= 0 {
		return attribute.String(attrStatus, "none")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func workflowAttr(key string) attribute.KeyValue {
	return attribute.String(attrWorkflow, key)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func outcomeAttr(success bool) attribute.KeyValue {
	if success {
		return attribute.String(attrOutcome, "success")
	}
	return attribute.String(attrOutcome, "error")
}

func terminalStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrStatus, status)
}

// normalizePath replaces job ids with a placeholder to bound cardinality.
func normalizePath(path string) string {
	const prefix = "/v1/jobs/"
	if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
		return prefix + "{jobId}"
	}
	return path
}
