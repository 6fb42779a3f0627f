package search

import (
	"reflect"
	"testing"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http.status_code", "http status code"},
		{"HTTP.Method", "http method"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"status: code", "status code"},
		{"  Multi   space \t query ", "multi space query"},
		{"::", ""},
		{"GET", "get"},
	}
	for _, tc := range cases {
		if got := NormalizeQuery(tc.in); got != tc.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func span(id, name, kind, service string, attrs ...Attr) SpanFields {
	return SpanFields{
		SpanID:  id,
		Name:    name,
		Kind:    kind,
		Service: service,
		Title:   service + "." + name,
		Attrs:   attrs,
	}
}

func TestFindMatchesAttributeValue(t *testing.T) {
	spans := []SpanFields{
		span("s1", "fetch", "client", "web", Attr{Key: "http.method", Value: "GET"}),
	}

	result := Find(spans, "get", 0)
	if result.Total != 1 || len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", result)
	}

	m := result.Matches[0]
	if m.SpanID != "s1" || m.Key != "http.method" {
		t.Errorf("wrong match identity: %+v", m)
	}
	if m.Value != "http.method: GET" {
		t.Errorf("attribute display = %q, want %q", m.Value, "http.method: GET")
	}
	// "GET" occupies the last three characters of the displayed string.
	want := [][2]int{{13, 15}}
	if !reflect.DeepEqual(m.Ranges, want) {
		t.Errorf("ranges = %v, want %v", m.Ranges, want)
	}
}

func TestFindMatchesNormalizedKey(t *testing.T) {
	spans := []SpanFields{
		span("s1", "fetch", "client", "web", Attr{Key: "http.status_code", Value: "200"}),
	}

	// Dots and underscores in keys normalize to spaces before matching.
	result := Find(spans, "status code", 0)
	if result.Total != 1 {
		t.Fatalf("expected 1 match, got %+v", result)
	}

	m := result.Matches[0]
	if m.Value != "http.status_code: 200" {
		t.Errorf("display = %q", m.Value)
	}
	// The hit covers "status_code" offsets 5..15 in the displayed string.
	want := [][2]int{{5, 15}}
	if !reflect.DeepEqual(m.Ranges, want) {
		t.Errorf("ranges = %v, want %v", m.Ranges, want)
	}
}

func TestFindMatchesBuiltinsAsBareValues(t *testing.T) {
	spans := []SpanFields{
		span("s1", "page.navigate", "internal", "checkout-web"),
	}

	result := Find(spans, "navigate", 0)
	if result.Total == 0 {
		t.Fatal("expected builtin field matches")
	}

	for _, m := range result.Matches {
		switch m.Key {
		case "name":
			if m.Value != "page.navigate" {
				t.Errorf("name display = %q, want bare value", m.Value)
			}
		case "title":
			if m.Value != "checkout-web.page.navigate" {
				t.Errorf("title display = %q", m.Value)
			}
		}
	}
}

func TestFindColonStrippedQuery(t *testing.T) {
	spans := []SpanFields{
		span("s1", "fetch", "client", "web", Attr{Key: "url", Value: "https://example.com"}),
	}

	// ':' is stripped from both the query and the haystack before
	// matching, so URLs and "key: value" style queries line up.
	result := Find(spans, "https://example", 0)
	if result.Total != 1 {
		t.Fatalf("expected 1 match, got %+v", result)
	}

	result = Find(spans, "url: https", 0)
	if result.Total != 1 {
		t.Fatalf("key-prefixed query: expected 1 match, got %+v", result)
	}
}

func TestFindMultipleOccurrences(t *testing.T) {
	spans := []SpanFields{
		span("s1", "noop", "internal", "web", Attr{Key: "note", Value: "abc abc"}),
	}

	result := Find(spans, "abc", 0)
	if result.Total != 1 {
		t.Fatalf("expected 1 matching attribute, got %d", result.Total)
	}
	if got := len(result.Matches[0].Ranges); got != 2 {
		t.Errorf("expected 2 ranges, got %d: %v", got, result.Matches[0].Ranges)
	}
}

func TestFindEmptyQuery(t *testing.T) {
	spans := []SpanFields{span("s1", "fetch", "client", "web")}
	for _, q := range []string{"", "   ", ":::"} {
		if result := Find(spans, q, 0); result.Total != 0 {
			t.Errorf("query %q: expected no matches, got %+v", q, result)
		}
	}
}

func TestFindCapAndTotal(t *testing.T) {
	var spans []SpanFields
	for i := 0; i < 10; i++ {
		spans = append(spans, span("s", "match-me", "internal", "web"))
	}

	result := Find(spans, "match-me", 3)
	if len(result.Matches) != 3 {
		t.Errorf("expected 3 displayed matches, got %d", len(result.Matches))
	}
	// Each span matches on name and title.
	if result.Total != 20 {
		t.Errorf("expected total 20, got %d", result.Total)
	}
	if !result.Truncated() {
		t.Error("expected truncated result")
	}
	if got := result.Summary(); got != "3 of 20 matches" {
		t.Errorf("Summary = %q", got)
	}
}

func TestFieldsFromTraces(t *testing.T) {
	data := &tracepb.TracesData{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						{
							Key: "service.name",
							Value: &commonpb.AnyValue{
								Value: &commonpb.AnyValue_StringValue{StringValue: "checkout"},
							},
						},
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{
						Spans: []*tracepb.Span{
							{
								SpanId: []byte{0xab, 0xcd, 1, 2, 3, 4, 5, 6},
								Name:   "click",
								Kind:   tracepb.Span_SPAN_KIND_CLIENT,
								Attributes: []*commonpb.KeyValue{
									{
										Key: "retry_count",
										Value: &commonpb.AnyValue{
											Value: &commonpb.AnyValue_IntValue{IntValue: 3},
										},
									},
									{
										Key: "ok",
										Value: &commonpb.AnyValue{
											Value: &commonpb.AnyValue_BoolValue{BoolValue: true},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	fields := FieldsFromTraces(data)
	if len(fields) != 1 {
		t.Fatalf("expected 1 span, got %d", len(fields))
	}

	f := fields[0]
	if f.Service != "checkout" || f.Name != "click" || f.Kind != "client" {
		t.Errorf("fields = %+v", f)
	}
	if f.Title != "checkout.click" {
		t.Errorf("title = %q", f.Title)
	}
	wantAttrs := []Attr{{Key: "retry_count", Value: "3"}, {Key: "ok", Value: "true"}}
	if !reflect.DeepEqual(f.Attrs, wantAttrs) {
		t.Errorf("attrs = %v, want %v", f.Attrs, wantAttrs)
	}
}
