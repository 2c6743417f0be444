package tracing

import "go.opentelemetry.io/otel/attribute"

func attrString(key, v string) attribute.KeyValue  { return attribute.String(key, v) }
func attrInt(key string, v int) attribute.KeyValue  { return attribute.Int(key, v) }
func attrInt64(key string, v int64) attribute.KeyValue { return attribute.Int64(key, v) }
func attrBool(key string, v bool) attribute.KeyValue { return attribute.Bool(key, v) }
func attrFloat(key string, v float64) attribute.KeyValue { return attribute.Float64(key, v) }
