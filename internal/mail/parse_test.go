package mail

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func textPart(mime, content string) *part {
	p := &part{MimeType: mime}
	p.Body.Data = b64(content)
	return p
}

func messageWith(payload *part) *Message {
	return &Message{ID: "m1", payload: payload}
}

func TestParseBody_PlainText(t *testing.T) {
	g := &Gmail{}
	msg := messageWith(textPart("text/plain; charset=utf-8", "remind me to call the dentist\n"))

	body, err := g.ParseBody(context.Background(), msg)
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if body != "remind me to call the dentist" {
		t.Errorf("body = %q, want trimmed plain text", body)
	}
}

func TestParseBody_PlainWinsOverHTML(t *testing.T) {
	g := &Gmail{}
	root := &part{MimeType: "multipart/alternative", Parts: []*part{
		textPart("text/plain", "the plain version"),
		textPart("text/html", "<p>the <b>html</b> version</p>"),
	}}

	body, err := g.ParseBody(context.Background(), messageWith(root))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if body != "the plain version" {
		t.Errorf("body = %q, want the plain part only", body)
	}
}

func TestParseBody_HTMLFallback(t *testing.T) {
	g := &Gmail{}
	msg := messageWith(textPart("text/html", "<html><body><p>book a flight</p><script>evil()</script></body></html>"))

	body, err := g.ParseBody(context.Background(), msg)
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if !strings.Contains(body, "book a flight") {
		t.Errorf("body = %q, want rendered html text", body)
	}
	if strings.Contains(body, "evil") {
		t.Errorf("body = %q, script content must be stripped", body)
	}
}

func TestParseBody_NestedMultipart(t *testing.T) {
	g := &Gmail{}
	root := &part{MimeType: "multipart/mixed", Parts: []*part{
		{MimeType: "multipart/alternative", Parts: []*part{
			textPart("text/plain", "nested request"),
		}},
	}}

	body, err := g.ParseBody(context.Background(), messageWith(root))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if body != "nested request" {
		t.Errorf("body = %q, want text from the nested part", body)
	}
}

func TestParseBody_UnreadablePDFIsSkipped(t *testing.T) {
	g := &Gmail{}
	badPDF := &part{MimeType: "application/pdf", Filename: "scan.pdf"}
	root := &part{MimeType: "multipart/mixed", Parts: []*part{
		textPart("text/plain", "see attachment"),
		badPDF,
	}}

	body, err := g.ParseBody(context.Background(), messageWith(root))
	if err != nil {
		t.Fatalf("ParseBody() error = %v, want the readable part despite the broken attachment", err)
	}
	if body != "see attachment" {
		t.Errorf("body = %q, want the plain text", body)
	}
}

func TestParseBody_NoReadableText(t *testing.T) {
	g := &Gmail{}
	msg := messageWith(&part{MimeType: "image/png"})

	if _, err := g.ParseBody(context.Background(), msg); err == nil {
		t.Fatal("ParseBody() error = nil, want error for message with no text")
	}
}

func TestParseBody_MissingPayload(t *testing.T) {
	g := &Gmail{}
	if _, err := g.ParseBody(context.Background(), &Message{ID: "m1"}); err == nil {
		t.Fatal("ParseBody() error = nil, want error for message without payload")
	}
}

func TestDecodeBody_ToleratesPadding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("hi"))
	for _, in := range []string{padded, strings.TrimRight(padded, "=")} {
		got, err := decodeBody(in)
		if err != nil {
			t.Fatalf("decodeBody(%q) error = %v", in, err)
		}
		if string(got) != "hi" {
			t.Errorf("decodeBody(%q) = %q, want hi", in, got)
		}
	}
}

func TestHTMLToText_BlockStructureSurvives(t *testing.T) {
	got := htmlToText("<div>first line</div><div>second line</div>")
	if !strings.Contains(got, "first line") || !strings.Contains(got, "second line") {
		t.Fatalf("htmlToText() = %q, want both lines", got)
	}
	if !strings.Contains(got, "\n") {
		t.Errorf("htmlToText() = %q, want a line break between divs", got)
	}
}

func TestPartHeader_CaseInsensitive(t *testing.T) {
	p := &part{}
	p.Headers = append(p.Headers, struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}{Name: "Message-ID", Value: "<abc@example.com>"})

	if got := p.header("message-id"); got != "<abc@example.com>" {
		t.Errorf("header() = %q, want the value regardless of case", got)
	}
}
