package market

import (
	"context"
	"strings"

	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

func (s *Service) SendMessage(ctx context.Context, sender model.User, nm model.NewMessage) (model.Message, error) {
	if sender.ID == "" {
		return model.Message{}, forbidden("login required")
	}
	nm.Content = strings.TrimSpace(nm.Content)
	if err := s.check(nm); err != nil {
		return model.Message{}, err
	}
	if nm.ReceiverID == sender.ID {
		return model.Message{}, validation("cannot message yourself", nil)
	}
	if _, err := s.store.GetUser(ctx, nm.ReceiverID); err != nil {
		if IsKind(err, KindNotFound) {
			return model.Message{}, validation("receiver does not exist", err)
		}
		return model.Message{}, xerrors.Errorf("loading receiver: %w", err)
	}
	if nm.DatasetID != "" {
		if _, err := s.store.GetDataset(ctx, nm.DatasetID); err != nil {
			return model.Message{}, lookup("dataset", err)
		}
	}
	if nm.RequestID != "" {
		if _, err := s.store.GetRequest(ctx, nm.RequestID); err != nil {
			return model.Message{}, lookup("request", err)
		}
	}

	m, err := s.store.CreateMessage(ctx, model.Message{
		SenderID:   sender.ID,
		ReceiverID: nm.ReceiverID,
		Content:    nm.Content,
		DatasetID:  nm.DatasetID,
		RequestID:  nm.RequestID,
	})
	if err != nil {
		return model.Message{}, xerrors.Errorf("storing message: %w", err)
	}

	s.publish(ctx, model.MarketEvent{
		Type:      model.EventMessageSent,
		ActorID:   sender.ID,
		MessageID: m.ID,
		DatasetID: m.DatasetID,
		RequestID: m.RequestID,
	})
	return m, nil
}

// Conversation is the thread between user and other, oldest first.
func (s *Service) Conversation(ctx context.Context, user model.User, otherID string) ([]model.Message, error) {
	ms, err := s.store.MessagesBetween(ctx, user.ID, otherID)
	if err != nil {
		return nil, xerrors.Errorf("loading conversation: %w", err)
	}
	return ms, nil
}

// Conversations lists the latest message per counterpart, newest first.
func (s *Service) Conversations(ctx context.Context, user model.User) ([]model.Conversation, error) {
	ms, err := s.store.Conversations(ctx, user.ID)
	if err != nil {
		return nil, xerrors.Errorf("listing conversations: %w", err)
	}
	other := func(m model.Message) string {
		if m.SenderID == user.ID {
			return m.ReceiverID
		}
		return m.SenderID
	}
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = other(m)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Conversation, len(ms))
	for i, m := range ms {
		out[i] = model.Conversation{Message: m, OtherUser: users[other(m)]}
	}
	return out, nil
}

// MarkMessageRead is allowed for the receiver only.
func (s *Service) MarkMessageRead(ctx context.Context, user model.User, id string) (model.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return model.Message{}, lookup("message", err)
	}
	if !s.gate.CanReadMessage(user, m) || m.ReceiverID != user.ID {
		return model.Message{}, forbidden("only the receiver can mark a message read")
	}
	if m.IsRead {
		return m, nil
	}
	m, err = s.store.MarkMessageRead(ctx, id)
	if err != nil {
		return model.Message{}, lookup("message", err)
	}
	return m, nil
}
