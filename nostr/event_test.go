package nostr

import (
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	k, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return k
}

func signed(t *testing.T, k *Keypair, content string, tags Tags) Event {
	t.Helper()
	ev, err := Sign(UnsignedEvent{CreatedAt: 1700000000, Kind: KindTextNote, Tags: tags, Content: content}, k)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return ev
}

func TestSerializeEscaping(t *testing.T) {
	got := string(serialize("ab", 12, 1, Tags{{"e", "x"}, {"p"}}, "line\n\"q\" <tag> & \\ \x01"))
	want := `[0,"ab",12,1,[["e","x"],["p"]],"line\n\"q\" <tag> & \\ \u0001"]`
	if got != want {
		t.Errorf("serialize = %s, want %s", got, want)
	}

	empty := string(serialize("ab", 0, 0, nil, ""))
	if empty != `[0,"ab",0,0,[],""]` {
		t.Errorf("serialize empty = %s", empty)
	}
}

func TestValidateRoundTrip(t *testing.T) {
	k := mustKeypair(t)
	cases := []struct {
		content string
		tags    Tags
	}{
		{"hello", nil},
		{"yes extra text", Tags{{"t", "poll"}}},
		{"multi\nline \"quoted\" ünïcødé", Tags{{"e", strings.Repeat("a", 64), "", "root"}, {"p", k.PublicKey()}}},
	}

	for _, tc := range cases {
		ev := signed(t, k, tc.content, tc.tags)
		raw, err := ev.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		got, err := Validate(raw)
		if err != nil {
			t.Fatalf("Validate(%q): %v", tc.content, err)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, ev)
		}
	}
}

func TestValidateTamperedContent(t *testing.T) {
	k := mustKeypair(t)
	ev := signed(t, k, "yes", nil)
	ev.Content = "no"
	raw, _ := ev.Marshal()

	_, err := Validate(raw)
	if !errors.Is(err, ErrBadIdentifier) && !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Validate tampered = %v, want bad identifier or bad signature", err)
	}
}

func TestValidateForgedSignature(t *testing.T) {
	author := mustKeypair(t)
	forger := mustKeypair(t)

	ev := signed(t, forger, "yes", nil)
	// claim a different author and recompute the id so only the signature is wrong
	ev.PubKey = author.PublicKey()
	id := ComputeID(ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content)
	ev.ID = hex.EncodeToString(id[:])
	raw, _ := ev.Marshal()

	if _, err := Validate(raw); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Validate forged = %v, want ErrBadSignature", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	cases := []string{
		"",
		"not json",
		`{"id":"short"}`,
		`[1,2,3]`,
	}
	for _, c := range cases {
		_, err := Validate([]byte(c))
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Validate(%q) = %v, want *ParseError", c, err)
		}
	}
}

func TestBuildReplyCorrelation(t *testing.T) {
	k := mustKeypair(t)
	root := strings.Repeat("b", 64)
	orig := signed(t, k, "yes", Tags{{"e", root, "wss://relay.example", "root"}})

	reply := BuildReply(orig, "thanks")
	if reply.Kind != KindTextNote || reply.Content != "thanks" {
		t.Fatalf("reply = %+v", reply)
	}

	want := Tags{
		{"e", root, "wss://relay.example", "root"},
		{"e", orig.ID, "", "reply"},
		{"p", orig.PubKey},
	}
	if !reflect.DeepEqual(reply.Tags, want) {
		t.Errorf("reply tags = %v, want %v", reply.Tags, want)
	}

	ev, err := Sign(reply, mustKeypair(t))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ev.RepliesTo(orig.ID) {
		t.Error("signed reply does not reference the original id")
	}
}

func TestMetadataEvent(t *testing.T) {
	u, err := MetadataEvent(Metadata{Name: "poll_bot", About: "Just a bot."})
	if err != nil {
		t.Fatalf("MetadataEvent: %v", err)
	}
	if u.Kind != KindMetadata {
		t.Errorf("kind = %d", u.Kind)
	}
	if u.Content != `{"name":"poll_bot","about":"Just a bot."}` {
		t.Errorf("content = %s", u.Content)
	}
	if !(Metadata{}).IsZero() {
		t.Error("zero metadata not reported as zero")
	}
}

func TestFilterMatches(t *testing.T) {
	k := mustKeypair(t)
	ev := signed(t, k, "hi", Tags{{"p", "someone"}})
	since := ev.CreatedAt - 10
	later := ev.CreatedAt + 10

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"kind", Filter{Kinds: []int{KindTextNote}}, true},
		{"other kind", Filter{Kinds: []int{KindMetadata}}, false},
		{"author", Filter{Authors: []string{k.PublicKey()}}, true},
		{"since", Filter{Since: &since}, true},
		{"future since", Filter{Since: &later}, false},
		{"p tag", Filter{PTags: []string{"someone"}}, true},
		{"missing p tag", Filter{PTags: []string{"nobody"}}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(ev); got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseKeypair(t *testing.T) {
	k := mustKeypair(t)

	fromHex, err := ParseKeypair(k.SecretHex() + "\n")
	if err != nil {
		t.Fatalf("ParseKeypair hex: %v", err)
	}
	if fromHex.PublicKey() != k.PublicKey() {
		t.Error("hex secret produced a different public key")
	}

	nsec, err := EncodeSecretKey(k.SecretHex())
	if err != nil {
		t.Fatalf("EncodeSecretKey: %v", err)
	}
	fromNsec, err := ParseKeypair(nsec)
	if err != nil {
		t.Fatalf("ParseKeypair nsec: %v", err)
	}
	if fromNsec.PublicKey() != k.PublicKey() {
		t.Error("nsec secret produced a different public key")
	}

	for _, bad := range []string{"", "zz", strings.Repeat("a", 62)} {
		if _, err := ParseKeypair(bad); err == nil {
			t.Errorf("ParseKeypair(%q) should fail", bad)
		}
	}
}
