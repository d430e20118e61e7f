package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Fake is an in-memory Client used by tests and local development. It
// records every call and can be told to fail DMs for specific users or to
// treat users as absent from specific guilds.
type Fake struct {
	mu sync.Mutex

	nextID uint64

	DMs          map[string][]string // userID -> contents
	ChannelPosts map[string][]string // channelID -> contents
	Channels     []ChannelRef
	Deleted      []string // channelIDs removed

	UnreachableUsers map[string]bool
	// Members maps guildID -> userID -> Member. Users missing from a guild
	// map resolve as ErrMemberNotFound.
	Members map[string]map[string]Member
}

func NewFake() *Fake {
	return &Fake{
		DMs:              make(map[string][]string),
		ChannelPosts:     make(map[string][]string),
		UnreachableUsers: make(map[string]bool),
		Members:          make(map[string]map[string]Member),
	}
}

func (f *Fake) id(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&f.nextID, 1))
}

// AddMember registers a user as a member of a guild.
func (f *Fake) AddMember(guildID string, m Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Members[guildID] == nil {
		f.Members[guildID] = make(map[string]Member)
	}
	f.Members[guildID][m.ID] = m
}

func (f *Fake) SendDirectMessage(_ context.Context, userID, content string, _ []string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnreachableUsers[userID] {
		return MessageRef{}, fmt.Errorf("%w: dm to %s rejected", ErrUnreachable, userID)
	}
	f.DMs[userID] = append(f.DMs[userID], content)
	return MessageRef{ID: f.id("dm"), ChannelID: "dm-" + userID}, nil
}

func (f *Fake) PostToChannel(_ context.Context, channelID, content string, _ []string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChannelPosts[channelID] = append(f.ChannelPosts[channelID], content)
	return MessageRef{ID: f.id("msg"), ChannelID: channelID}, nil
}

func (f *Fake) CreateChannel(_ context.Context, guildID, name, _ string) (ChannelRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := ChannelRef{ID: f.id("chan"), GuildID: guildID, Name: name}
	f.Channels = append(f.Channels, ref)
	return ref, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *Fake) ResolveMember(_ context.Context, guildID, userID string) (Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.Members[guildID]; ok {
		if m, ok := g[userID]; ok {
			return m, nil
		}
	}
	return Member{}, ErrMemberNotFound
}

// PostsTo returns the contents posted to a channel so far.
func (f *Fake) PostsTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ChannelPosts[channelID]...)
}

// DMsTo returns the DM contents sent to a user so far.
func (f *Fake) DMsTo(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.DMs[userID]...)
}
