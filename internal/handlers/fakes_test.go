package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

type memItems struct {
	mu    sync.Mutex
	items map[string]*models.Item
	order []string
}

func newMemItems() *memItems {
	return &memItems{items: map[string]*models.Item{}}
}

func (m *memItems) CreateItem(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now().UTC()
	item.Version = 1
	cp := *item
	m.items[item.ID.Hex()] = &cp
	m.order = append([]string{item.ID.Hex()}, m.order...)
	return nil
}

func (m *memItems) get(id string) (*models.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrItemNotFound
	}
	return it, nil
}

func (m *memItems) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.get(id)
	if err != nil {
		return nil, err
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Item
	for _, id := range m.order {
		it := m.items[id]
		if filter.Kind != "" && it.Kind != filter.Kind {
			continue
		}
		all = append(all, *it)
	}
	total := int64(len(all))
	start := min(int(filter.Skip), len(all))
	end := min(start+int(filter.Limit), len(all))
	return all[start:end], total, nil
}

func (m *memItems) UpdateItem(ctx context.Context, id string, item *models.Item) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.get(id)
	if err != nil {
		return nil, err
	}
	it.Title, it.Content, it.Tags = item.Title, item.Content, item.Tags
	it.Version++
	cp := *it
	return &cp, nil
}

func (m *memItems) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.items, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memItems) IncrementViewCount(ctx context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.get(id)
	if err != nil {
		return nil, err
	}
	it.ViewCount++
	cp := *it
	return &cp, nil
}

func (m *memItems) AdjustLikesCount(ctx context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.get(id)
	if err != nil {
		return 0, err
	}
	it.LikesCount += delta
	it.Version++
	return it.LikesCount, nil
}

func (m *memItems) AdjustCommentsCount(ctx context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.get(id)
	if err != nil {
		return 0, err
	}
	it.CommentsCount += delta
	it.Version++
	return it.CommentsCount, nil
}

type memReplies struct {
	mu      sync.Mutex
	seq     int
	replies map[string]*models.Reply
}

func newMemReplies() *memReplies {
	return &memReplies{replies: map[string]*models.Reply{}}
}

func (m *memReplies) CreateReply(ctx context.Context, reply *models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	reply.ID = fmt.Sprintf("R%d", m.seq)
	reply.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	cp := *reply
	m.replies[reply.ID] = &cp
	return nil
}

func (m *memReplies) GetReplyByID(ctx context.Context, id string) (*models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[id]
	if !ok {
		return nil, repositories.ErrReplyNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReplies) GetRepliesByItemID(ctx context.Context, itemID string) ([]models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reply
	for _, r := range m.replies {
		if r.ItemID == itemID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memReplies) UpdateReply(ctx context.Context, reply *models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reply
	m.replies[reply.ID] = &cp
	return nil
}

func (m *memReplies) DeleteReply(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.replies[id]; !ok {
		return repositories.ErrReplyNotFound
	}
	delete(m.replies, id)
	return nil
}

func (m *memReplies) DeleteRepliesByItemID(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.replies {
		if r.ItemID == itemID {
			delete(m.replies, id)
		}
	}
	return nil
}

func (m *memReplies) AdjustLikesCount(ctx context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[id]
	if !ok {
		return 0, repositories.ErrReplyNotFound
	}
	r.LikesCount += delta
	return r.LikesCount, nil
}

// memLikes serves both item and reply likes
type memLikes struct {
	mu    sync.Mutex
	likes map[string]map[string]bool
}

func newMemLikes() *memLikes {
	return &memLikes{likes: map[string]map[string]bool{}}
}

func (m *memLikes) toggle(target, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.likes[target]
	if !ok {
		set = map[string]bool{}
		m.likes[target] = set
	}
	if set[userID] {
		delete(set, userID)
		return false
	}
	set[userID] = true
	return true
}

func (m *memLikes) likers(ids []string) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]string{}
	for _, id := range ids {
		for u := range m.likes[id] {
			out[id] = append(out[id], u)
		}
	}
	return out
}

func (m *memLikes) ToggleLike(ctx context.Context, itemID, userID string) (bool, error) {
	return m.toggle(itemID, userID), nil
}

func (m *memLikes) GetLikerIDsByItem(ctx context.Context, itemIDs []string) (map[string][]string, error) {
	return m.likers(itemIDs), nil
}

func (m *memLikes) DeleteLikesByItemID(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.likes, itemID)
	return nil
}

func (m *memLikes) ToggleReplyLike(ctx context.Context, replyID, userID string) (bool, error) {
	return m.toggle(replyID, userID), nil
}

func (m *memLikes) GetLikerIDsByReply(ctx context.Context, replyIDs []string) (map[string][]string, error) {
	return m.likers(replyIDs), nil
}

type recorder struct {
	mu     sync.Mutex
	events []entity.Event
}

func (r *recorder) Publish(ev entity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return entity.Event{}
	}
	return r.events[len(r.events)-1]
}
