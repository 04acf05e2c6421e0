package remote

import (
	"strings"
	"testing"
)

const multipartMessage = "From: Ann <ann@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=report.csv\r\n" +
	"\r\n" +
	"a,b\r\n1,2\r\n" +
	"--XYZ--\r\n"

func TestParseMIME(t *testing.T) {
	text, html, atts := ParseMIME([]byte(multipartMessage))

	if !strings.Contains(text, "See attached.") {
		t.Errorf("text body = %q", text)
	}
	if html != "" {
		t.Errorf("html body = %q, want empty", html)
	}
	if len(atts) != 1 {
		t.Fatalf("got %d attachments, want 1", len(atts))
	}
	if atts[0].Filename != "report.csv" || atts[0].MIMEType != "text/csv" {
		t.Errorf("attachment = %+v", atts[0])
	}
	if atts[0].Size == 0 {
		t.Error("attachment size not recorded")
	}
}

func TestParseMIMEFallsBackToRaw(t *testing.T) {
	raw := "malformed header line\r\n\r\nbody"
	text, _, _ := ParseMIME([]byte(raw))
	if text == "" {
		t.Error("unparseable message produced no text body")
	}
}
