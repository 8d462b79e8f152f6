// Package notify turns market events into emails for the people involved.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

var log = logging.Logger("notify")

type Email struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, e Email) error
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, e Email) error {
	log.Infow("email", "to", e.To, "subject", e.Subject)
	return nil
}

// SMTPSender delivers with PLAIN auth against one relay.
type SMTPSender struct {
	Addr     string
	From     string
	Username string
	Password string
}

func (s SMTPSender) Send(_ context.Context, e Email) error {
	host := s.Addr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	var a smtp.Auth
	if s.Username != "" {
		a = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.From, e.To, e.Subject, e.Body)
	if err := smtp.SendMail(s.Addr, a, s.From, []string{e.To}, []byte(msg)); err != nil {
		return xerrors.Errorf("sending mail to %s: %w", e.To, err)
	}
	return nil
}

// Outbox records emails; used in tests and dry runs.
type Outbox struct {
	mu   sync.Mutex
	sent []Email
}

func (o *Outbox) Send(_ context.Context, e Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
	return nil
}

func (o *Outbox) Sent() []Email {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Email(nil), o.sent...)
}

// Directory resolves the ids carried by events.
type Directory interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	GetDataset(ctx context.Context, id string) (model.Dataset, error)
	GetMessage(ctx context.Context, id string) (model.Message, error)
	GetRequest(ctx context.Context, id string) (model.DatasetRequest, error)
}

type Notifier struct {
	dir    Directory
	sender Sender
}

func NewNotifier(dir Directory, sender Sender) *Notifier {
	return &Notifier{dir: dir, sender: sender}
}

// Handle matches events.Handler. Events nobody is told about are ignored.
func (n *Notifier) Handle(ctx context.Context, evt model.MarketEvent) error {
	emails, err := n.compose(ctx, evt)
	if err != nil {
		return err
	}
	for _, e := range emails {
		if err := n.sender.Send(ctx, e); err != nil {
			return xerrors.Errorf("notifying %s of %s: %w", e.To, evt.Type, err)
		}
	}
	return nil
}

func (n *Notifier) compose(ctx context.Context, evt model.MarketEvent) ([]Email, error) {
	switch evt.Type {
	case model.EventPurchaseCompleted:
		d, err := n.dir.GetDataset(ctx, evt.DatasetID)
		if err != nil {
			return nil, xerrors.Errorf("loading dataset: %w", err)
		}
		buyer, err := n.dir.GetUser(ctx, evt.BuyerID)
		if err != nil {
			return nil, xerrors.Errorf("loading buyer: %w", err)
		}
		seller, err := n.dir.GetUser(ctx, d.SellerID)
		if err != nil {
			return nil, xerrors.Errorf("loading seller: %w", err)
		}
		amount := evt.Amount.StringFixed(2)
		return []Email{
			{
				To:      buyer.Email,
				Subject: "Your purchase of " + d.Title,
				Body:    fmt.Sprintf("Hi %s,\n\nYour payment of $%s for %q went through. You can download it from your dashboard.", buyer.Name, amount, d.Title),
			},
			{
				To:      seller.Email,
				Subject: "You made a sale: " + d.Title,
				Body:    fmt.Sprintf("Hi %s,\n\n%s bought %q for $%s.", seller.Name, buyer.Name, d.Title, amount),
			},
		}, nil

	case model.EventProposalAccepted:
		seller, err := n.dir.GetUser(ctx, evt.SellerID)
		if err != nil {
			return nil, xerrors.Errorf("loading seller: %w", err)
		}
		r, err := n.dir.GetRequest(ctx, evt.RequestID)
		if err != nil {
			return nil, xerrors.Errorf("loading request: %w", err)
		}
		return []Email{{
			To:      seller.Email,
			Subject: "Proposal accepted: " + r.Title,
			Body:    fmt.Sprintf("Hi %s,\n\nYour proposal of $%s for %q was accepted.", seller.Name, evt.Amount.StringFixed(2), r.Title),
		}}, nil

	case model.EventMessageSent:
		m, err := n.dir.GetMessage(ctx, evt.MessageID)
		if err != nil {
			return nil, xerrors.Errorf("loading message: %w", err)
		}
		from, err := n.dir.GetUser(ctx, m.SenderID)
		if err != nil {
			return nil, xerrors.Errorf("loading sender: %w", err)
		}
		to, err := n.dir.GetUser(ctx, m.ReceiverID)
		if err != nil {
			return nil, xerrors.Errorf("loading receiver: %w", err)
		}
		return []Email{{
			To:      to.Email,
			Subject: "New message from " + from.Name,
			Body:    preview(m.Content, 200),
		}}, nil
	}
	return nil, nil
}

func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
