package config

import (
	"testing"
)

func TestParseICEServersJSON_SingleAndListURLs(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478", "turns:turn.example.com:5349"], "username": "u", "credential": "c"}
	]`
	servers, err := ParseICEServersJSON(raw, false)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("stun url=%q", servers[0].URLs[0])
	}
	if servers[1].Username != "u" {
		t.Fatalf("turn username=%q, want u", servers[1].Username)
	}
	if cred, _ := servers[1].Credential.(string); cred != "c" {
		t.Fatalf("turn credential=%v, want c", servers[1].Credential)
	}
}

func TestParseICEServersJSON_TurnRequiresCredentials(t *testing.T) {
	raw := `[{"urls": "turn:turn.example.com:3478"}]`
	if _, err := ParseICEServersJSON(raw, false); err == nil {
		t.Fatalf("expected error for credentialless turn url")
	}

	// With TURN REST enabled, credentials are minted per request and static
	// ones may be omitted.
	if _, err := ParseICEServersJSON(raw, true); err != nil {
		t.Fatalf("ParseICEServersJSON with turn rest: %v", err)
	}
}

func TestParseICEServersJSON_RejectsUnknownScheme(t *testing.T) {
	raw := `[{"urls": "https://example.com"}]`
	if _, err := ParseICEServersJSON(raw, false); err == nil {
		t.Fatalf("expected error for non-ICE scheme")
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	servers, err := parseICEServersFromValues(
		"",
		"stun:a.example.com, stun:b.example.com",
		"turn:t.example.com",
		"user",
		"pass",
		false,
	)
	if err != nil {
		t.Fatalf("parseICEServersFromValues: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("username=%q, want user", servers[1].Username)
	}
}

func TestParseICEServersFromConvenienceEnv_TurnWithoutCreds(t *testing.T) {
	if _, err := parseICEServersFromValues("", "", "turn:t.example.com", "", "", false); err == nil {
		t.Fatalf("expected error for turn urls without credentials")
	}
	if _, err := parseICEServersFromValues("", "", "turn:t.example.com", "", "", true); err != nil {
		t.Fatalf("turn rest should allow credentialless turn urls: %v", err)
	}
}
