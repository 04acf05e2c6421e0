package graph

import (
	"time"

	"github.com/nhle/mailsync/internal/model"
)

type folderPage struct {
	Value []folder `json:"value"`
}

type folder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type messagePage struct {
	Value []message `json:"value"`
}

type emailAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (e emailAddress) address() model.Address {
	return model.Address{Name: e.EmailAddress.Name, Address: e.EmailAddress.Address}
}

type message struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	From             emailAddress   `json:"from"`
	ToRecipients     []emailAddress `json:"toRecipients"`
	IsRead           bool           `json:"isRead"`
	ReceivedDateTime time.Time      `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

func (m message) summary(folder string) model.MailSummary {
	s := model.MailSummary{
		ID:         m.ID,
		Subject:    m.Subject,
		From:       m.From.address(),
		IsRead:     m.IsRead,
		Folder:     folder,
		ReceivedAt: m.ReceivedDateTime,
	}
	for _, to := range m.ToRecipients {
		s.To = append(s.To, to.address())
	}
	return s
}

// errorResponse is the Graph error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
