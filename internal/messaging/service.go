package messaging

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yxshee/marketplace-storefront/internal/platform/identifier"
)

const maxMessageLength = 4000

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrNotParticipant = errors.New("not a thread participant")
	ErrInvalidMessage = errors.New("message body must be between 1 and 4000 characters")
	ErrInvalidThread  = errors.New("thread requires a buyer and a vendor")
	ErrMessageToSelf  = errors.New("vendor cannot open a thread with its own shop")
)

type SenderSide string

const (
	SideBuyer  SenderSide = "buyer"
	SideVendor SenderSide = "vendor"
)

// Thread is a conversation between one buyer and one vendor, optionally about
// a product.
type Thread struct {
	ID            string    `json:"id"`
	BuyerUserID   string    `json:"buyer_user_id"`
	VendorID      string    `json:"vendor_id"`
	ProductID     string    `json:"product_id,omitempty"`
	Subject       string    `json:"subject"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type Message struct {
	ID           string     `json:"id"`
	ThreadID     string     `json:"thread_id"`
	SenderUserID string     `json:"sender_user_id"`
	SenderSide   SenderSide `json:"sender_side"`
	Body         string     `json:"body"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Participant identifies the caller; VendorID is set for vendor staff.
type Participant struct {
	UserID   string
	VendorID string
}

func (p Participant) sideIn(thread Thread) (SenderSide, bool) {
	if p.VendorID != "" && p.VendorID == thread.VendorID {
		return SideVendor, true
	}
	if p.UserID != "" && p.UserID == thread.BuyerUserID {
		return SideBuyer, true
	}
	return "", false
}

type Service struct {
	mu       sync.RWMutex
	threads  map[string]Thread
	byTopic  map[string]string
	messages map[string][]Message
	now      func() time.Time
}

func NewService() *Service {
	return &Service{
		threads:  make(map[string]Thread),
		byTopic:  make(map[string]string),
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func topicKey(buyerUserID, vendorID, productID string) string {
	return buyerUserID + "|" + vendorID + "|" + productID
}

// StartThread returns the existing thread for the buyer, vendor and product, or
// opens a new one.
func (s *Service) StartThread(buyer Participant, vendorID, productID, subject string) (Thread, bool, error) {
	vendorID = strings.TrimSpace(vendorID)
	productID = strings.TrimSpace(productID)
	if buyer.UserID == "" || vendorID == "" {
		return Thread{}, false, ErrInvalidThread
	}
	if buyer.VendorID == vendorID {
		return Thread{}, false, ErrMessageToSelf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := topicKey(buyer.UserID, vendorID, productID)
	if threadID, exists := s.byTopic[key]; exists {
		return s.threads[threadID], false, nil
	}

	now := s.now()
	thread := Thread{
		ID:            identifier.New("thr"),
		BuyerUserID:   buyer.UserID,
		VendorID:      vendorID,
		ProductID:     productID,
		Subject:       strings.TrimSpace(subject),
		CreatedAt:     now,
		LastMessageAt: now,
	}
	s.threads[thread.ID] = thread
	s.byTopic[key] = thread.ID
	return thread, true, nil
}

func (s *Service) Post(threadID string, sender Participant, body string) (Message, error) {
	text := strings.TrimSpace(body)
	if text == "" || utf8.RuneCountInString(text) > maxMessageLength {
		return Message{}, ErrInvalidMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[threadID]
	if !exists {
		return Message{}, ErrThreadNotFound
	}
	side, ok := sender.sideIn(thread)
	if !ok {
		return Message{}, ErrNotParticipant
	}

	message := Message{
		ID:           identifier.New("msg"),
		ThreadID:     threadID,
		SenderUserID: sender.UserID,
		SenderSide:   side,
		Body:         text,
		CreatedAt:    s.now(),
	}
	s.messages[threadID] = append(s.messages[threadID], message)
	thread.MessageCount++
	thread.LastMessageAt = message.CreatedAt
	s.threads[threadID] = thread
	return message, nil
}

// Messages returns a thread's messages oldest first.
func (s *Service) Messages(threadID string, reader Participant) (Thread, []Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, exists := s.threads[threadID]
	if !exists {
		return Thread{}, nil, ErrThreadNotFound
	}
	if _, ok := reader.sideIn(thread); !ok {
		return Thread{}, nil, ErrNotParticipant
	}
	return thread, append([]Message{}, s.messages[threadID]...), nil
}

func (s *Service) ListForBuyer(buyerUserID string) []Thread {
	return s.list(func(thread Thread) bool { return thread.BuyerUserID == buyerUserID })
}

func (s *Service) ListForVendor(vendorID string) []Thread {
	return s.list(func(thread Thread) bool { return thread.VendorID == vendorID })
}

func (s *Service) list(match func(Thread) bool) []Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Thread, 0)
	for _, thread := range s.threads {
		if match(thread) {
			items = append(items, thread)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastMessageAt.Equal(items[j].LastMessageAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].LastMessageAt.After(items[j].LastMessageAt)
	})
	return items
}
