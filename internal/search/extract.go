package search

import (
	"fmt"
	"strconv"
	"strings"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// FieldsFromTraces walks a TracesData envelope and projects each span into
// its searchable fields. Attribute order on the span is preserved.
func FieldsFromTraces(data *tracepb.TracesData) []SpanFields {
	if data == nil {
		return nil
	}

	var fields []SpanFields
	for _, rs := range data.ResourceSpans {
		service := serviceName(rs.Resource)
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				fields = append(fields, SpanFields{
					SpanID:  fmt.Sprintf("%x", span.SpanId),
					Name:    span.Name,
					Kind:    kindLabel(span.Kind),
					Service: service,
					Title:   service + "." + span.Name,
					Attrs:   attrs(span.Attributes),
				})
			}
		}
	}
	return fields
}

// serviceName extracts the service.name resource attribute, defaulting to
// "unknown".
func serviceName(resource *resourcepb.Resource) string {
	if resource == nil {
		return "unknown"
	}
	for _, attr := range resource.Attributes {
		if attr.Key == "service.name" {
			if sv := attr.Value.GetStringValue(); sv != "" {
				return sv
			}
		}
	}
	return "unknown"
}

// kindLabel renders a span kind as the short lowercase form the viewer
// displays, e.g. "client".
func kindLabel(kind tracepb.Span_SpanKind) string {
	return strings.ToLower(strings.TrimPrefix(kind.String(), "SPAN_KIND_"))
}

func attrs(kvs []*commonpb.KeyValue) []Attr {
	out := make([]Attr, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, Attr{Key: kv.Key, Value: anyValueString(kv.Value)})
	}
	return out
}

// anyValueString stringifies the string/number/bool values spans carry.
func anyValueString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	default:
		return v.String()
	}
}
