package services

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"soul-card-backend/internal/models"
	"soul-card-backend/internal/repository"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func strPtr(s string) *string { return &s }

// memStore is an in-memory stand-in for the database with the same
// uniqueness and conditional-update behaviour
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	profiles map[string]*models.Profile
	apps     map[string]*models.Application

	// injected failures
	getAppErr  error
	saveErr    error
	onSave     func()
	shareTaken map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*models.User),
		profiles:   make(map[string]*models.Profile),
		apps:       make(map[string]*models.Application),
		shareTaken: make(map[string]bool),
	}
}

func (m *memStore) repos() Repos {
	return Repos{
		Users:        memUsers{m},
		Profiles:     memProfiles{m},
		Applications: memApps{m},
	}
}

func (m *memStore) tx(ctx context.Context, fn func(r Repos) error) error {
	return fn(m.repos())
}

func (m *memStore) addUser(id, name string) *models.User {
	u := &models.User{ID: id, Email: id + "@example.com", Name: name, CreatedAt: testNow}
	m.users[id] = u
	return u
}

func (m *memStore) addProfile(id, userID, shareCode string, questions ...string) *models.Profile {
	p := models.NewDefaultProfile(id, userID, "nick-"+userID, shareCode, testNow)
	p.Questions = questions
	m.profiles[id] = p
	return p
}

func (m *memStore) app(id string) *models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneApp(m.apps[id])
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, user *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *user
	r.m.users[user.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r memUsers) UpdatePushToken(_ context.Context, userID string, pushToken *string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PushToken = pushToken
	return nil
}

type memProfiles struct{ m *memStore }

func (r memProfiles) Create(_ context.Context, p *models.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.profiles {
		if existing.UserID == p.UserID || existing.ShareCode == p.ShareCode {
			return repository.ErrDuplicate
		}
	}
	cp := *p
	r.m.profiles[p.ID] = &cp
	return nil
}

func (r memProfiles) find(match func(p *models.Profile) bool) (*models.Profile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.profiles {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memProfiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.ID == id })
}

func (r memProfiles) GetByUserID(_ context.Context, userID string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.UserID == userID })
}

func (r memProfiles) GetByShareCode(_ context.Context, code string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.ShareCode == code })
}

func (r memProfiles) ShareCodeExists(_ context.Context, code string) (bool, error) {
	// "*" marks every code as taken
	if r.m.shareTaken[code] || r.m.shareTaken["*"] {
		return true, nil
	}
	_, err := r.find(func(p *models.Profile) bool { return p.ShareCode == code })
	return err == nil, nil
}

func (r memProfiles) Update(_ context.Context, p *models.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.profiles[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *p
	cp.ShareCode = existing.ShareCode
	cp.UserID = existing.UserID
	r.m.profiles[p.ID] = &cp
	return nil
}

func (r memProfiles) UpdateAvatarKey(_ context.Context, profileID, key string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[profileID]
	if !ok {
		return repository.ErrNotFound
	}
	p.AvatarKey = &key
	return nil
}

func (r memProfiles) GetOwnerName(_ context.Context, profileID string) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[profileID]
	if !ok {
		return "", repository.ErrNotFound
	}
	u, ok := r.m.users[p.UserID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return u.Name, nil
}

type memApps struct{ m *memStore }

func (r memApps) Create(_ context.Context, app *models.Application) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.matchesLocked(app.ProfileID, app.Identities()) {
		return repository.ErrDuplicate
	}
	r.m.apps[app.ID] = cloneApp(app)
	return nil
}

func (r memApps) GetByID(_ context.Context, id string) (*models.Application, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.getAppErr != nil {
		return nil, r.m.getAppErr
	}
	app, ok := r.m.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneApp(app), nil
}

func (r memApps) ExistsForIdentities(_ context.Context, profileID string, ids []models.ApplicantIdentity) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.matchesLocked(profileID, ids), nil
}

func (r memApps) matchesLocked(profileID string, ids []models.ApplicantIdentity) bool {
	for _, existing := range r.m.apps {
		if existing.ProfileID != profileID {
			continue
		}
		for _, have := range existing.Identities() {
			if slices.Contains(ids, have) {
				return true
			}
		}
	}
	return false
}

func (r memApps) SaveTransition(_ context.Context, app *models.Application, expected ...models.ApplicationStatus) error {
	if r.m.onSave != nil {
		r.m.onSave()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.saveErr != nil {
		return r.m.saveErr
	}
	stored, ok := r.m.apps[app.ID]
	if !ok || !slices.Contains(expected, stored.Status) {
		return repository.ErrStaleState
	}
	next := cloneApp(stored)
	next.Status = app.Status
	next.FollowUps = cloneApp(app).FollowUps
	next.ReplyMessage = app.ReplyMessage
	next.UpdatedAt = app.UpdatedAt
	r.m.apps[app.ID] = next
	return nil
}

func (r memApps) list(match func(a *models.Application) bool, withApplicant bool) []*models.ApplicationEntry {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var entries []*models.ApplicationEntry
	for _, a := range r.m.apps {
		if !match(a) {
			continue
		}
		entry := &models.ApplicationEntry{Application: *cloneApp(a)}
		if p, ok := r.m.profiles[a.ProfileID]; ok {
			entry.Profile = models.ProfileSummary{Nickname: p.Nickname, Title: p.Title, ThemeColor: p.ThemeColor}
		}
		if withApplicant && a.ApplicantUserID != nil {
			for _, p := range r.m.profiles {
				if p.UserID == *a.ApplicantUserID {
					entry.ApplicantProfile = &models.ApplicantProfile{Nickname: p.Nickname, Title: p.Title, Tags: p.Tags}
				}
			}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries
}

func (r memApps) ListReceived(_ context.Context, ownerID string) ([]*models.ApplicationEntry, error) {
	return r.list(func(a *models.Application) bool { return a.TargetUserID == ownerID }, true), nil
}

func (r memApps) ListSent(_ context.Context, applicantID string) ([]*models.ApplicationEntry, error) {
	return r.list(func(a *models.Application) bool {
		return a.ApplicantUserID != nil && *a.ApplicantUserID == applicantID
	}, false), nil
}

func (r memApps) CountReceivedByStatus(_ context.Context, ownerID string) (map[models.ApplicationStatus]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := make(map[models.ApplicationStatus]int)
	for _, a := range r.m.apps {
		if a.TargetUserID == ownerID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (r memApps) CountSent(_ context.Context, applicantID string) (int, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var sent, needAnswer int
	for _, a := range r.m.apps {
		if a.ApplicantUserID != nil && *a.ApplicantUserID == applicantID {
			sent++
			if a.Status == models.StatusFollowUp {
				needAnswer++
			}
		}
	}
	return sent, needAnswer, nil
}

func cloneApp(a *models.Application) *models.Application {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Questions = slices.Clone(a.Questions)
	cp.Answers = slices.Clone(a.Answers)
	cp.FollowUps = make(models.FollowUpLog, len(a.FollowUps))
	for i, f := range a.FollowUps {
		cp.FollowUps[i] = models.FollowUp{
			Questions: slices.Clone(f.Questions),
			Answers:   slices.Clone(f.Answers),
			CreatedAt: f.CreatedAt,
		}
	}
	return &cp
}

type recordedEvent struct {
	userID string
	ev     Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, ev: ev})
}

func (n *recordingNotifier) last() recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return recordedEvent{}
	}
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}
