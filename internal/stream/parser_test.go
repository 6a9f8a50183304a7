package stream

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		want   EventType
	}{
		{"start", `data: {"type":"start","total_files":3}`, true, TypeStart},
		{"blank", ``, false, ""},
		{"no prefix", `{"type":"start"}`, false, ""},
		{"prefix without space", `data:{"type":"start"}`, false, ""},
		{"comment", `: ping`, false, ""},
		{"truncated json", `data: {not json`, false, ""},
		{"null payload", `data: null`, false, ""},
		{"missing type", `data: {"file_index":1}`, false, ""},
		{"wrong field type", `data: {"type":"file_start","file_index":"one"}`, false, ""},
		{"unknown type parses", `data: {"type":"brand_new"}`, true, "brand_new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if ok && ev.Type != tt.want {
				t.Errorf("ParseLine(%q).Type = %s, want %s", tt.line, ev.Type, tt.want)
			}
			if !ok && ev != nil {
				t.Errorf("ParseLine(%q) returned event with ok=false", tt.line)
			}
		})
	}
}

func TestParseLine_Fields(t *testing.T) {
	line := `data: {"type":"complete","success":false,"success_count":1,"failed_count":1,"total_count":2,` +
		`"message":"done","results":[{"file_name":"a.pdf","success":true},{"file_name":"b.pdf","success":false,"error":"x"}]}`
	ev, ok := ParseLine(line)
	if !ok {
		t.Fatal("ParseLine() ok = false")
	}
	if ev.Success == nil || *ev.Success {
		t.Errorf("Success = %v, want explicit false", ev.Success)
	}
	if ev.SuccessCount != 1 || ev.FailedCount != 1 || ev.TotalCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", ev.SuccessCount, ev.FailedCount, ev.TotalCount)
	}
	if len(ev.Results) != 2 || ev.Results[1].Error != "x" {
		t.Errorf("Results = %+v", ev.Results)
	}

	ev, _ = ParseLine(`data: {"type":"page_progress","file_index":1,"page_index":5,"total_pages":10}`)
	if ev.Success != nil {
		t.Errorf("Success = %v, want nil when omitted", *ev.Success)
	}
	if ev.FileIndex != 1 || ev.PageIndex != 5 || ev.TotalPages != 10 {
		t.Errorf("page fields = %d/%d/%d, want 1/5/10", ev.FileIndex, ev.PageIndex, ev.TotalPages)
	}
}

func TestEventTypeTerminal(t *testing.T) {
	terminal := map[EventType]bool{TypeComplete: true, TypeCancelled: true, TypeError: true}
	for _, typ := range KnownTypes() {
		if got := typ.Terminal(); got != terminal[typ] {
			t.Errorf("%s.Terminal() = %v, want %v", typ, got, terminal[typ])
		}
	}
}

func TestKnownTypes(t *testing.T) {
	types := KnownTypes()
	if len(types) != 24 {
		t.Errorf("len(KnownTypes()) = %d, want 24", len(types))
	}
	seen := map[EventType]bool{}
	for _, typ := range types {
		if seen[typ] {
			t.Errorf("duplicate type %s", typ)
		}
		seen[typ] = true
		if !typ.Known() {
			t.Errorf("%s.Known() = false", typ)
		}
	}
	if EventType("brand_new").Known() {
		t.Error("unknown type reported as known")
	}

	types[0] = "mutated"
	if KnownTypes()[0] != TypeStart {
		t.Error("KnownTypes() exposes its backing array")
	}
}
