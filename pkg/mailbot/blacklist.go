// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"

	"github.com/aiku/modmail/pkg/store"
)

// Commands gated by the blacklist.
const (
	commandModmail      = "modmail"
	commandPriorityMail = "prioritymail"
)

// Gate evaluates blacklist rules before privileged actions. It is a
// pure predicate over a snapshot of blacklist entries; an empty
// community id on an entry matches every community and the command
// "all" matches every command.
type Gate struct {
	store *store.Store
}

// IsBlocked reports whether any blacklist entry blocks the user from
// the command in the community.
func (g *Gate) IsBlocked(ctx context.Context, command, communityID, userID string) (bool, error) {
	entries, err := g.store.Blacklist(ctx)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if matchCommunity(entry, communityID) && entry.UserID == userID && matchCommand(entry, command) {
			return true, nil
		}
	}
	return false, nil
}

func matchCommunity(entry *store.BlacklistEntry, communityID string) bool {
	return entry.CommunityID == communityID || entry.CommunityID == ""
}

func matchCommand(entry *store.BlacklistEntry, command string) bool {
	return entry.Command == "all" || entry.Command == command
}
