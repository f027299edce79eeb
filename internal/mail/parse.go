package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ParseBody extracts the text of a message. The plain-text part wins when
// present; otherwise the HTML part is rendered to text. Text extracted from
// PDF attachments is appended so requests arriving as documents still reach
// the pipeline. Decode failures in individual parts are logged and skipped
// rather than failing the whole message.
func (g *Gmail) ParseBody(ctx context.Context, msg *Message) (string, error) {
	if msg.payload == nil {
		return "", fmt.Errorf("message %s was not fetched with a payload", msg.ID)
	}

	var plain, htmlBody strings.Builder
	var pdfTexts []string

	var walk func(p *part)
	walk = func(p *part) {
		switch {
		case p.Filename != "" && strings.HasSuffix(strings.ToLower(p.Filename), ".pdf"):
			text, err := g.pdfText(ctx, msg.ID, p)
			if err != nil {
				slog.Warn("skipping unreadable PDF attachment", "filename", p.Filename, "error", err)
			} else if text != "" {
				pdfTexts = append(pdfTexts, fmt.Sprintf("[Attachment %s]\n%s", p.Filename, text))
			}
		case strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "":
			if data, err := decodeBody(p.Body.Data); err == nil {
				plain.Write(data)
			} else {
				slog.Warn("skipping undecodable text part", "error", err)
			}
		case strings.HasPrefix(p.MimeType, "text/html") && p.Body.Data != "":
			if data, err := decodeBody(p.Body.Data); err == nil {
				htmlBody.Write(data)
			} else {
				slog.Warn("skipping undecodable html part", "error", err)
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(msg.payload)

	body := strings.TrimSpace(plain.String())
	if body == "" && htmlBody.Len() > 0 {
		body = strings.TrimSpace(htmlToText(htmlBody.String()))
	}

	if len(pdfTexts) > 0 {
		if body != "" {
			body += "\n\n"
		}
		body += strings.Join(pdfTexts, "\n\n")
	}

	if body == "" {
		return "", fmt.Errorf("message %s has no readable text", msg.ID)
	}
	return body, nil
}

// decodeBody decodes Gmail's base64url body data, tolerating both padded
// and unpadded input.
func decodeBody(data string) ([]byte, error) {
	return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
}

// pdfText fetches a PDF attachment and extracts its plain text.
func (g *Gmail) pdfText(ctx context.Context, messageID string, p *part) (string, error) {
	var data []byte
	var err error
	if p.Body.AttachmentID != "" {
		data, err = g.attachment(ctx, messageID, p.Body.AttachmentID)
	} else if p.Body.Data != "" {
		data, err = decodeBody(p.Body.Data)
	} else {
		return "", fmt.Errorf("attachment has no data")
	}
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// htmlToText renders HTML to plain text by concatenating text nodes,
// skipping script and style subtrees.
func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		// Block-level elements become line breaks so structure survives.
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4":
				b.WriteByte('\n')
			}
		}
	}
	walk(doc)
	return b.String()
}
