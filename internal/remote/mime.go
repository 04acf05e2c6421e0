package remote

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailsync/internal/model"
)

// ParseMIME parses a raw RFC 5322 message and extracts the text/plain
// body, the text/html body and attachment metadata. A message that cannot
// be parsed is returned whole as the text body.
func ParseMIME(raw []byte) (textBody string, htmlBody string, attachments []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF or a malformed part; keep what we have.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case contentType == "", strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			n, readErr := io.Copy(io.Discard, part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, model.Attachment{
				Filename: filename,
				Size:     n,
				MIMEType: contentType,
			})
		}
	}

	return textBody, htmlBody, attachments
}
