package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"chirp-dm/internal/domain/conversation"
	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/repository"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/google/uuid"
)

// memStore mirrors the SQL repositories closely enough to exercise the
// service's counter and status rules without a database.
type memStore struct {
	mu            sync.Mutex
	seq           int64
	users         map[uuid.UUID]user.Summary
	conversations map[uuid.UUID]*conversation.Conversation
	unread        map[uuid.UUID]map[uuid.UUID]int
	messages      map[uuid.UUID]*message.Message
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[uuid.UUID]user.Summary),
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		unread:        make(map[uuid.UUID]map[uuid.UUID]int),
		messages:      make(map[uuid.UUID]*message.Message),
	}
}

func (s *memStore) addUser(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = user.Summary{ID: id, Username: name, DisplayName: name}
	return id
}

func (s *memStore) countConversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *memStore) unreadFor(convID, userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[convID][userID]
}

func (s *memStore) message(id uuid.UUID) (message.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return message.Message{}, false
	}
	return *m, true
}

func (s *memStore) conversation(id uuid.UUID) conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

// unreadByStatus counts messages addressed to userID that are not read.
func (s *memStore) unreadByStatus(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.RecipientID == userID && m.Status != message.StatusRead {
			n++
		}
	}
	return n
}

// conversation repository

func (s *memStore) FindOrCreate(_ context.Context, a, b uuid.UUID) (conversation.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	low, high := conversation.SortedPair(a, b)
	for _, c := range s.conversations {
		if c.ParticipantLow == low && c.ParticipantHigh == high {
			c.IsActive = true
			return *c, false, nil
		}
	}
	now := time.Now().UTC()
	c := &conversation.Conversation{
		ID:              uuid.New(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.conversations[c.ID] = c
	s.unread[c.ID] = map[uuid.UUID]int{low: 0, high: 0}
	return *c, true, nil
}

func (s *memStore) GetForParticipant(_ context.Context, convID, userID uuid.UUID) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[convID]
	if !ok || !c.IsActive || !c.HasParticipant(userID) {
		return conversation.Conversation{}, chirp_errors.ErrNotFound
	}
	return *c, nil
}

func (s *memStore) ListForUser(_ context.Context, userID uuid.UUID) ([]conversation.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []conversation.Summary
	for _, c := range s.conversations {
		if !c.IsActive || !c.HasParticipant(userID) {
			continue
		}
		sum := conversation.Summary{
			Conversation:       *c,
			OtherParticipantID: c.OtherParticipant(userID),
			UnreadCount:        s.unread[c.ID][userID],
		}
		if c.LastMessageID.Valid {
			if m, ok := s.messages[c.LastMessageID.UUID]; ok {
				cp := *m
				sum.LastMessage = &cp
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) UnreadCount(_ context.Context, convID, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, ok := s.unread[convID]
	if !ok {
		return 0, chirp_errors.ErrNotFound
	}
	return counts[userID], nil
}

func (s *memStore) UnreadTotal(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for id, counts := range s.unread {
		if s.conversations[id].IsActive {
			total += counts[userID]
		}
	}
	return total, nil
}

func (s *memStore) Delete(_ context.Context, convID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[convID]; !ok {
		return chirp_errors.ErrNotFound
	}
	for id, m := range s.messages {
		if m.ConversationID == convID {
			delete(s.messages, id)
		}
	}
	delete(s.conversations, convID)
	delete(s.unread, convID)
	return nil
}

// message repository, exposed through messageRepo to avoid the Delete clash

type messageRepo struct{ *memStore }

func (r messageRepo) Send(_ context.Context, msg *message.Message) (bool, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return false, chirp_errors.ErrNotFound
	}
	if msg.ClientMessageID.Valid {
		for _, m := range s.messages {
			if m.ConversationID == msg.ConversationID && m.SenderID == msg.SenderID &&
				m.ClientMessageID == msg.ClientMessageID &&
				m.CreatedAt.After(msg.CreatedAt.Add(-repository.ClientMessageWindow)) {
				*msg = *m
				return false, nil
			}
		}
	}
	s.seq++
	msg.Seq = s.seq
	stored := *msg
	s.messages[msg.ID] = &stored
	c.LastMessageID = uuid.NullUUID{UUID: msg.ID, Valid: true}
	c.UpdatedAt = msg.CreatedAt
	s.unread[c.ID][msg.RecipientID]++
	return true, nil
}

func (r messageRepo) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return message.Message{}, chirp_errors.ErrNotFound
	}
	return *m, nil
}

func (r messageRepo) ListPage(_ context.Context, convID uuid.UUID, offset, limit int) ([]message.Message, int, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []message.Message
	for _, m := range s.messages {
		if m.ConversationID == convID {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r messageRepo) MarkDelivered(_ context.Context, recipientID uuid.UUID, ids []uuid.UUID) ([]message.StatusChange, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var changes []message.StatusChange
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.RecipientID != recipientID || m.Status != message.StatusSent {
			continue
		}
		m.Status = message.StatusDelivered
		m.DeliveredAt = sql.NullTime{Time: now, Valid: true}
		m.UpdatedAt = now
		changes = append(changes, message.StatusChange{
			MessageID: id, ConversationID: m.ConversationID, SenderID: m.SenderID,
			RecipientID: recipientID, Status: message.StatusDelivered, At: now,
		})
	}
	return changes, nil
}

func (s *memStore) promoteRead(m *message.Message, reader uuid.UUID, now time.Time) {
	m.Status = message.StatusRead
	m.IsRead = true
	if !m.DeliveredAt.Valid {
		m.DeliveredAt = sql.NullTime{Time: now, Valid: true}
	}
	m.UpdatedAt = now
	if !m.HasReader(reader) {
		m.ReadBy = append(m.ReadBy, message.ReadReceipt{MessageID: m.ID, UserID: reader, ReadAt: now})
	}
}

func (r messageRepo) MarkRead(_ context.Context, id, reader uuid.UUID) (*message.StatusChange, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.RecipientID != reader || m.Status == message.StatusRead {
		return nil, nil
	}
	now := time.Now().UTC()
	s.promoteRead(m, reader, now)
	if s.unread[m.ConversationID][reader] > 0 {
		s.unread[m.ConversationID][reader]--
	}
	return &message.StatusChange{
		MessageID: id, ConversationID: m.ConversationID, SenderID: m.SenderID,
		RecipientID: reader, Status: message.StatusRead, At: now,
	}, nil
}

func (r messageRepo) MarkConversationRead(_ context.Context, convID, reader uuid.UUID) ([]message.StatusChange, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var changes []message.StatusChange
	for _, m := range s.messages {
		if m.ConversationID != convID || m.RecipientID != reader || m.Status == message.StatusRead {
			continue
		}
		s.promoteRead(m, reader, now)
		changes = append(changes, message.StatusChange{
			MessageID: m.ID, ConversationID: convID, SenderID: m.SenderID,
			RecipientID: reader, Status: message.StatusRead, At: now,
		})
	}
	s.unread[convID][reader] = 0
	return changes, nil
}

func (r messageRepo) Delete(_ context.Context, msg message.Message) error {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[msg.ID]
	if !ok {
		return chirp_errors.ErrNotFound
	}
	delete(s.messages, msg.ID)
	if m.Status != message.StatusRead && s.unread[m.ConversationID][m.RecipientID] > 0 {
		s.unread[m.ConversationID][m.RecipientID]--
	}
	c := s.conversations[m.ConversationID]
	if c.LastMessageID.Valid && c.LastMessageID.UUID == m.ID {
		c.LastMessageID = uuid.NullUUID{}
		var newest *message.Message
		for _, other := range s.messages {
			if other.ConversationID == c.ID && (newest == nil || other.Seq > newest.Seq) {
				newest = other
			}
		}
		if newest != nil {
			c.LastMessageID = uuid.NullUUID{UUID: newest.ID, Valid: true}
		}
	}
	return nil
}

// user repository

type userRepo struct{ *memStore }

func (r userRepo) GetSummaries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]user.Summary, error) {
	s := r.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]user.Summary)
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []message.StatusChange
}

func (n *recordingNotifier) MessageStatusChanged(_ context.Context, changes []message.StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, changes...)
}

func (n *recordingNotifier) all() []message.StatusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]message.StatusChange(nil), n.changes...)
}
