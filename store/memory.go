package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cppla/circlefeed/models"
)

// In-memory stores for single-instance runs and tests. Every read returns a
// copy so callers never alias stored state.

// MemoryGraph is a GraphStore backed by a map.
type MemoryGraph struct {
	mu    sync.RWMutex
	users map[uint]*models.User
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{users: map[uint]*models.User{}}
}

func (g *MemoryGraph) GetUser(ctx context.Context, id uint) (*models.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (g *MemoryGraph) EnsureUser(ctx context.Context, id uint, name string) (*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[id]
	if !ok {
		now := time.Now()
		u = &models.User{ID: id, Username: name, CreatedAt: now, UpdatedAt: now}
		u.InitGraph()
		g.users[id] = u
	}
	return cloneUser(u), nil
}

func (g *MemoryGraph) AddCircleMember(ctx context.Context, owner uint, circle string, member uint, memberName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	members, ok := u.Circles[circle]
	if !ok {
		members = map[uint]string{}
		u.Circles[circle] = members
	}
	members[member] = memberName
	return nil
}

func (g *MemoryGraph) RemoveCircleMember(ctx context.Context, owner uint, circle string, member uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	members := u.Circles[circle]
	delete(members, member)
	// circles only exist through their members, as in the SQL store
	if len(members) == 0 {
		delete(u.Circles, circle)
	}
	return nil
}

func (g *MemoryGraph) AddFollowerCircle(ctx context.Context, owner, follower uint, followerName, circle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	entry, ok := u.Followers[follower]
	if !ok {
		entry = &models.Follower{}
		u.Followers[follower] = entry
	}
	entry.Name = followerName
	entry.AddCircle(circle)
	return nil
}

func (g *MemoryGraph) RemoveFollowerCircle(ctx context.Context, owner, follower uint, circle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	entry, ok := u.Followers[follower]
	if !ok {
		return nil
	}
	entry.RemoveCircle(circle)
	if len(entry.Circles) == 0 {
		delete(u.Followers, follower)
	}
	return nil
}

func (g *MemoryGraph) Block(ctx context.Context, owner, blocked uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	u.Blocked[blocked] = struct{}{}
	return nil
}

func (g *MemoryGraph) Unblock(ctx context.Context, owner, blocked uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[owner]
	if !ok {
		return ErrNotFound
	}
	delete(u.Blocked, blocked)
	return nil
}

func cloneUser(u *models.User) *models.User {
	out := &models.User{
		ID:        u.ID,
		Username:  u.Username,
		Profile:   u.Profile,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	out.InitGraph()
	for id, f := range u.Followers {
		out.Followers[id] = &models.Follower{Name: f.Name, Circles: append([]string(nil), f.Circles...)}
	}
	for name, members := range u.Circles {
		m := make(map[uint]string, len(members))
		for id, n := range members {
			m[id] = n
		}
		out.Circles[name] = m
	}
	for id := range u.Blocked {
		out.Blocked[id] = struct{}{}
	}
	return out
}

// MemoryPosts is a PostStore backed by maps.
type MemoryPosts struct {
	mu          sync.Mutex
	posts       map[string]*models.Post
	tasks       map[uint]*models.FanoutTask
	nextComment uint
	nextTask    uint
}

func NewMemoryPosts() *MemoryPosts {
	return &MemoryPosts{
		posts: map[string]*models.Post{},
		tasks: map[uint]*models.FanoutTask{},
	}
}

func (s *MemoryPosts) CreatePost(ctx context.Context, post *models.Post, task *models.FanoutTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.Stamp(time.Now())
	if _, ok := s.posts[post.ID]; ok {
		return ErrConflict
	}
	stored := *post
	stored.Comments = append([]models.Comment(nil), post.Comments...)
	s.posts[post.ID] = &stored

	task.PostID = post.ID
	task.Month = post.Month
	s.insertTaskLocked(task)
	return nil
}

func (s *MemoryPosts) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Comments = append([]models.Comment(nil), p.Comments...)
	return &out, nil
}

func (s *MemoryPosts) AppendComment(ctx context.Context, comment *models.Comment, task *models.FanoutTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[comment.PostID]
	if !ok {
		return ErrNotFound
	}
	s.nextComment++
	comment.ID = s.nextComment
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	p.Comments = append(p.Comments, *comment)

	task.PostID = p.ID
	task.CommentID = comment.ID
	task.Month = p.Month
	s.insertTaskLocked(task)
	return nil
}

func (s *MemoryPosts) insertTaskLocked(task *models.FanoutTask) {
	s.nextTask++
	now := time.Now()
	task.ID = s.nextTask
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	stored := *task
	s.tasks[task.ID] = &stored
}

func (s *MemoryPosts) PendingTasks(ctx context.Context, cutoff time.Time, limit int) ([]models.FanoutTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FanoutTask
	for _, t := range s.tasks {
		if t.Status != models.TaskPending && t.Status != models.TaskFailed {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryPosts) UpdateTask(ctx context.Context, task *models.FanoutTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	task.UpdatedAt = time.Now()
	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

// Task returns a stored task by id.
func (s *MemoryPosts) Task(id uint) (models.FanoutTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.FanoutTask{}, false
	}
	return *t, true
}

// MemoryBuckets is a BucketStore backed by maps.
type MemoryBuckets struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*memBucket
	copies  map[string]map[models.CopyRef]struct{}
}

type bucketKey struct {
	kind  models.BucketKind
	owner uint
	month string
}

type memBucket struct {
	posts []*memCopy
}

type memCopy struct {
	cp   models.PostCopy
	seen map[uint]struct{}
}

func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{
		buckets: map[bucketKey]*memBucket{},
		copies:  map[string]map[models.CopyRef]struct{}{},
	}
}

func (m *MemoryBuckets) AppendPost(ctx context.Context, kind models.BucketKind, owner uint, month string, cp models.PostCopy) error {
	if _, err := models.ParseMonth(month); err != nil {
		return fmt.Errorf("invalid month %q: %w", month, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bucketKey{kind: kind, owner: owner, month: month}
	b, ok := m.buckets[key]
	if !ok {
		b = &memBucket{}
		m.buckets[key] = b
	}
	if b.find(cp.PostID) != nil {
		return nil
	}
	stored := &memCopy{cp: clonePostCopy(cp), seen: map[uint]struct{}{}}
	for _, c := range stored.cp.Comments {
		stored.seen[c.ID] = struct{}{}
	}
	stored.cp.CommentsShown = len(stored.cp.Comments)
	b.posts = append(b.posts, stored)

	ref := models.CopyRef{Kind: kind, Owner: owner, Month: month, PostID: cp.PostID}
	refs, ok := m.copies[cp.PostID]
	if !ok {
		refs = map[models.CopyRef]struct{}{}
		m.copies[cp.PostID] = refs
	}
	refs[ref] = struct{}{}
	return nil
}

func (m *MemoryBuckets) AppendPosts(ctx context.Context, kind models.BucketKind, owners []uint, month string, cp models.PostCopy) error {
	var result *multierror.Error
	for _, owner := range owners {
		if err := m.AppendPost(ctx, kind, owner, month, cp); err != nil {
			result = multierror.Append(result, &DeliveryError{Owner: owner, Err: err})
		}
	}
	return result.ErrorOrNil()
}

func (m *MemoryBuckets) Months(ctx context.Context, kind models.BucketKind, owner uint) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var months []string
	for key := range m.buckets {
		if key.kind == kind && key.owner == owner {
			months = append(months, key.month)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

func (m *MemoryBuckets) GetBucket(ctx context.Context, kind models.BucketKind, owner uint, month string) (*models.Bucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucketKey{kind: kind, owner: owner, month: month}]
	if !ok {
		return nil, ErrNotFound
	}
	out := &models.Bucket{Kind: kind, Owner: owner, Month: month, Posts: make([]models.PostCopy, 0, len(b.posts))}
	for _, c := range b.posts {
		out.Posts = append(out.Posts, clonePostCopy(c.cp))
	}
	return out, nil
}

func (m *MemoryBuckets) FindCopies(ctx context.Context, postID string) ([]models.CopyRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]models.CopyRef, 0, len(m.copies[postID]))
	for ref := range m.copies[postID] {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs, nil
}

func (m *MemoryBuckets) AppendComment(ctx context.Context, ref models.CopyRef, c models.CommentSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, err := m.lookupLocked(ref)
	if err != nil {
		return err
	}
	if _, ok := cp.seen[c.ID]; ok {
		return nil
	}
	cp.seen[c.ID] = struct{}{}
	cp.cp.Comments = append(cp.cp.Comments, c)
	cp.cp.CommentsShown++
	return nil
}

func (m *MemoryBuckets) FindOverflow(ctx context.Context, limit int) ([]models.CopyRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []models.CopyRef
	for key, b := range m.buckets {
		for _, c := range b.posts {
			if c.cp.CommentsShown > limit {
				refs = append(refs, models.CopyRef{Kind: key.kind, Owner: key.owner, Month: key.month, PostID: c.cp.PostID})
			}
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (m *MemoryBuckets) PopOldestComment(ctx context.Context, ref models.CopyRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, err := m.lookupLocked(ref)
	if err != nil {
		return err
	}
	if len(cp.cp.Comments) == 0 {
		return nil
	}
	cp.cp.Comments = cp.cp.Comments[1:]
	cp.cp.CommentsShown--
	return nil
}

func (m *MemoryBuckets) lookupLocked(ref models.CopyRef) (*memCopy, error) {
	b, ok := m.buckets[bucketKey{kind: ref.Kind, owner: ref.Owner, month: ref.Month}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := b.find(ref.PostID)
	if cp == nil {
		return nil, ErrNotFound
	}
	return cp, nil
}

func (b *memBucket) find(postID string) *memCopy {
	for _, c := range b.posts {
		if c.cp.PostID == postID {
			return c
		}
	}
	return nil
}

func clonePostCopy(cp models.PostCopy) models.PostCopy {
	cp.Circles = append([]string(nil), cp.Circles...)
	cp.Comments = append([]models.CommentSnapshot(nil), cp.Comments...)
	return cp
}

func sortRefs(refs []models.CopyRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
}
