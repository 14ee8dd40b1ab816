package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"warfront.gg/internal/protocol"
)

func sampleDiff() protocol.DiffMsg {
	return protocol.DiffMsg{
		Type:            protocol.TypeDiff,
		ProtocolVersion: protocol.Version,
		Tick:            7,
		Units: []protocol.UnitDiff{
			{UnitID: "CP_ironport_docks", FactionID: "crimson_pact", Influence: 81, Ownership: "EXCLUSIVE", Holder: "crimson_pact", Cause: "objective_complete"},
		},
		Sieges: []protocol.SiegeDiff{
			{SiegeID: "S000002", UnitID: "CP_ironport_docks", Event: protocol.SiegeResolved, Phase: "LOCKED", Dominance: 1, Attacker: "azure_syndicate", Defender: "crimson_pact", AttackerTickets: 12, DefenderTickets: 0, Winner: "azure_syndicate"},
		},
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	actSchema := compile("act.schema.json")
	ackSchema := compile("ack.schema.json")
	diffSchema := compile("diff.schema.json")
	subscribeSchema := compile("subscribe.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"bot1",
	  "faction_id":"crimson_pact",
	  "capabilities":{"max_queue":8},
	  "filter":["R_northreach"]
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"C_a1b2c3d4",
	  "faction_id":"crimson_pact",
	  "tick":42,
	  "map_params":{"tick_rate_hz":10,"regions":3,"districts":5,"control_points":8}
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "tick":42,
	  "actions":[
	    {"id":"A1","kind":"SECURE","unit_id":"CP_ironport_docks","faction_id":"crimson_pact","magnitude":5},
	    {"id":"A2","kind":"STRIKE","unit_id":"CP_ironport_docks","faction_id":"crimson_pact","magnitude":3,"siege_id":"S000001"},
	    {"id":"A3","kind":"FALL","unit_id":"CP_ironport_docks","faction_id":"crimson_pact","siege_id":"S000001"}
	  ]
	}`), &act)
	validate(actSchema, act)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"A1",
	  "accepted":false,
	  "code":"E_UNKNOWN_UNIT",
	  "message":"no such unit",
	  "server_tick":42
	}`), &ack)
	validate(ackSchema, ack)

	var diff any
	_ = json.Unmarshal([]byte(`{
	  "type":"DIFF",
	  "protocol_version":"1.0",
	  "tick":43,
	  "units":[
	    {"unit_id":"CP_ironport_docks","faction_id":"crimson_pact","influence":62.5,"ownership":"DOMINANT","holder":"crimson_pact","cause":"objective_complete"}
	  ],
	  "sieges":[
	    {"siege_id":"S000001","unit_id":"CP_ironport_docks","event":"PHASE","phase":"INTERDICT","dominance":0.61,"attacker":"azure_syndicate","defender":"crimson_pact","attacker_tickets":30,"defender_tickets":28}
	  ]
	}`), &diff)
	validate(diffSchema, diff)

	var subscribe any
	_ = json.Unmarshal([]byte(`{
	  "type":"SUBSCRIBE",
	  "protocol_version":"1.0",
	  "filter":["D_crossroads","CP_goldfields_mine"]
	}`), &subscribe)
	validate(subscribeSchema, subscribe)
}

// Round-trips built messages through the schemas so structs and schema files
// cannot drift apart.
func TestSchemas_MatchGoTypes(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "diff.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	b, err := json.Marshal(sampleDiff())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("built DiffMsg does not satisfy schema: %v", err)
	}
}
