package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/events"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// Page limits for message history.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination describes one page of message history. TotalMessages is the
// group's full count at query time, so concatenating pages 1..TotalPages
// reconstructs the whole history.
type Pagination struct {
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalMessages int64 `json:"totalMessages"`
	HasNext       bool  `json:"hasNext"`
	HasPrev       bool  `json:"hasPrev"`
}

// MessageService gates every message operation behind an active-membership
// check and owns pagination and read-state arithmetic.
type MessageService struct {
	messages    repository.MessageRepository
	memberships repository.MembershipRepository
	groups      repository.GroupRepository
	events      *events.Producer
	log         *zap.SugaredLogger
}

func NewMessageService(
	messages repository.MessageRepository,
	memberships repository.MembershipRepository,
	groups repository.GroupRepository,
	events *events.Producer,
	log *zap.SugaredLogger,
) *MessageService {
	return &MessageService{
		messages:    messages,
		memberships: memberships,
		groups:      groups,
		events:      events,
		log:         log,
	}
}

// authorize checks the group exists and the caller is an active member.
// Every group-scoped operation goes through here; a non-member gets a
// Forbidden error, never a silent empty result.
func (s *MessageService) authorize(ctx context.Context, userID, groupID primitive.ObjectID) (*models.Membership, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("group not found")
		}
		return nil, apperrors.Internal(err)
	}
	m, err := s.memberships.GetActive(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Forbidden("you are not a member of this group")
		}
		return nil, apperrors.Internal(err)
	}
	return m, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperrors.InvalidArgument("message content must not be empty").
			WithFields(map[string]string{"content": "must not be empty"})
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return "", apperrors.InvalidArgument("message content too long").
			WithFields(map[string]string{"content": "must be at most 1000 characters"})
	}
	return content, nil
}

// Send validates input before touching the store: malformed content or type
// is InvalidArgument even when the group does not exist or the sender is not
// a member. The new message carries the sender's own read receipt so senders
// never see their own messages as unread.
func (s *MessageService) Send(ctx context.Context, senderID, groupID primitive.ObjectID, content string, msgType models.MessageType) (*models.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperrors.InvalidArgument("invalid message type").
			WithFields(map[string]string{"messageType": "must be one of text, image, file, system"})
	}

	if _, err := s.authorize(ctx, senderID, groupID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &models.Message{
		GroupID:   groupID,
		SenderID:  senderID,
		Content:   content,
		Type:      msgType,
		ReadBy:    []models.ReadReceipt{{UserID: senderID, ReadAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeMessageSent, msg); err != nil {
		s.log.Warnw("publish message.sent", "group_id", groupID.Hex(), "error", err)
	}
	return msg, nil
}

// List returns one page of the group's history in chronological order. Page 1
// holds the most recent limit messages; the page is fetched newest first and
// reversed before returning. Every returned message is marked read for the
// caller.
func (s *MessageService) List(ctx context.Context, userID, groupID primitive.ObjectID, page, limit int) ([]models.Message, *Pagination, error) {
	fields := map[string]string{}
	if page < 1 {
		fields["page"] = "must be at least 1"
	}
	if limit < 1 || limit > MaxPageLimit {
		fields["limit"] = "must be between 1 and 100"
	}
	if len(fields) > 0 {
		return nil, nil, apperrors.InvalidArgument("invalid pagination parameters").WithFields(fields)
	}

	if _, err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, nil, err
	}

	total, err := s.messages.CountByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	msgs, err := s.messages.ListByGroup(ctx, groupID, page, limit)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	// Newest-first fetch, chronological response.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := s.markMessagesRead(ctx, userID, msgs); err != nil {
		return nil, nil, err
	}
	return msgs, paginate(page, limit, total), nil
}

func paginate(page, limit int, total int64) *Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &Pagination{
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasNext:       page < totalPages,
		HasPrev:       page > 1,
	}
}

// markMessagesRead adds the caller's receipt to each message concurrently.
// The receipts are independent sub-operations; the first failure is reported
// and fails the batch.
func (s *MessageService) markMessagesRead(ctx context.Context, userID primitive.ObjectID, msgs []models.Message) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range msgs {
		if msgs[i].ReadByUser(userID) {
			continue
		}
		i := i
		g.Go(func() error {
			receipt := models.ReadReceipt{UserID: userID, ReadAt: time.Now().UTC()}
			added, err := s.messages.AddReadReceipt(ctx, msgs[i].ID, receipt)
			if err != nil {
				return err
			}
			if added {
				msgs[i].ReadBy = append(msgs[i].ReadBy, receipt)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// MarkRead adds the caller's receipt to each listed message and returns how
// many receipts were actually added. Re-reading a message is a no-op, so the
// count only covers first reads. A message outside the group fails that
// sub-operation with NotFound.
func (s *MessageService) MarkRead(ctx context.Context, userID, groupID primitive.ObjectID, messageIDs []primitive.ObjectID) (int64, error) {
	if _, err := s.authorize(ctx, userID, groupID); err != nil {
		return 0, err
	}

	var marked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range messageIDs {
		id := id
		g.Go(func() error {
			msg, err := s.messages.GetByID(gctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.NotFound("message not found")
				}
				return err
			}
			if msg.GroupID != groupID {
				return apperrors.NotFound("message not found")
			}
			added, err := s.messages.AddReadReceipt(gctx, id, models.ReadReceipt{UserID: userID, ReadAt: time.Now().UTC()})
			if err != nil {
				return err
			}
			if added {
				marked.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if _, ok := apperrors.AsError(err); ok {
			return 0, err
		}
		return 0, apperrors.Internal(err)
	}
	return marked.Load(), nil
}

// UnreadCount counts the group's messages the user has neither sent nor read.
func (s *MessageService) UnreadCount(ctx context.Context, userID, groupID primitive.ObjectID) (int64, error) {
	if _, err := s.authorize(ctx, userID, groupID); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnread(ctx, groupID, userID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return n, nil
}

// Edit replaces a message's content. Only the original sender may edit; group
// admins cannot.
func (s *MessageService) Edit(ctx context.Context, userID, messageID primitive.ObjectID, content string) (*models.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("message not found")
		}
		return nil, apperrors.Internal(err)
	}
	if msg.SenderID != userID {
		return nil, apperrors.Forbidden("only the sender can edit a message")
	}

	now := time.Now().UTC()
	if err := s.messages.UpdateContent(ctx, messageID, content, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("message not found")
		}
		return nil, apperrors.Internal(err)
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = now

	if err := s.events.Publish(ctx, msg.GroupID.Hex(), events.TypeMessageEdited, msg); err != nil {
		s.log.Warnw("publish message.edited", "message_id", messageID.Hex(), "error", err)
	}
	return msg, nil
}

// Delete removes a message. Allowed for the sender and for active admins of
// the message's group.
func (s *MessageService) Delete(ctx context.Context, userID, messageID primitive.ObjectID) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("message not found")
		}
		return apperrors.Internal(err)
	}

	if msg.SenderID != userID {
		m, err := s.memberships.GetActive(ctx, msg.GroupID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Internal(err)
		}
		if m == nil || m.Role != models.GroupRoleAdmin {
			return apperrors.Forbidden("only the sender or a group admin can delete a message")
		}
	}

	if err := s.messages.Delete(ctx, messageID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, msg.GroupID.Hex(), events.TypeMessageDeleted, msg); err != nil {
		s.log.Warnw("publish message.deleted", "message_id", messageID.Hex(), "error", err)
	}
	return nil
}
