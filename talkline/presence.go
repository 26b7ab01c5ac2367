package talkline

// PresenceSet is the set of user ids currently online, excluding the
// local user. It is replaced wholesale on each snapshot from the live
// channel, never patched incrementally.
type PresenceSet map[string]struct{}

// NewPresenceSet builds a set from a snapshot, dropping selfID even if
// the server erroneously included it.
func NewPresenceSet(ids []string, selfID string) PresenceSet {
	s := make(PresenceSet, len(ids))
	for _, id := range ids {
		if id == selfID {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is online.
func (s PresenceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// RosterEntry is one directory entry joined with its presence flag.
type RosterEntry struct {
	DirectoryEntry
	Active bool
}

// ProjectRoster joins the directory with the presence set. Pure
// projection: order follows the directory, the local user is excluded,
// no state is retained.
func ProjectRoster(directory []DirectoryEntry, presence PresenceSet, selfID string) []RosterEntry {
	roster := make([]RosterEntry, 0, len(directory))
	for _, entry := range directory {
		if entry.ID == selfID {
			continue
		}
		roster = append(roster, RosterEntry{
			DirectoryEntry: entry,
			Active:         presence.Contains(entry.ID),
		})
	}
	return roster
}
