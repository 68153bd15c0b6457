package api

import "testing"

func TestParseWebhookPayloadDirectInvocation(t *testing.T) {
	payload, err := parseWebhookPayload([]byte(`{"action":"dispatch","trip_id":42}`))
	if err != nil {
		t.Fatal(err)
	}
	if payload.direct == nil || payload.change != nil {
		t.Fatal("expected the direct arm of the union")
	}
	if payload.direct.Action != "dispatch" || payload.direct.TripID != 42 {
		t.Fatalf("got %+v", payload.direct)
	}
}

func TestParseWebhookPayloadRecordChange(t *testing.T) {
	body := []byte(`{"type":"INSERT","table":"trips","record":{"id":7,"status":"pending"}}`)
	payload, err := parseWebhookPayload(body)
	if err != nil {
		t.Fatal(err)
	}
	if payload.change == nil || payload.direct != nil {
		t.Fatal("expected the record-change arm of the union")
	}
	if payload.change.Type != "INSERT" || payload.change.Table != "trips" {
		t.Fatalf("got %+v", payload.change)
	}
}

func TestParseWebhookPayloadRejectsUnknownShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"field probe", `{"foo":"bar"}`},
		{"direct with extras", `{"action":"dispatch","trip_id":42,"extra":true}`},
		{"direct without trip", `{"action":"dispatch"}`},
		{"change for another table", `{"type":"INSERT","table":"drivers","record":{"id":1}}`},
		{"change with bad type", `{"type":"DELETE","table":"trips","record":{"id":1}}`},
		{"change without record", `{"type":"INSERT","table":"trips"}`},
		{"both shapes mixed", `{"action":"dispatch","trip_id":1,"type":"INSERT","table":"trips","record":{}}`},
		{"not json", `dispatch trip 42`},
	}
	for _, c := range cases {
		if _, err := parseWebhookPayload([]byte(c.body)); err == nil {
			t.Errorf("%s: expected a rejection, got none", c.name)
		}
	}
}
