package ws

// roomSet tracks room membership with forward and reverse indexes.
// Forward: room id → set of connection ids. Reverse: connection id →
// set of room ids, so disconnect cleanup is O(rooms joined), not
// O(all rooms). Not self-locking: the owning Hub serializes access.
type roomSet struct {
	rooms map[string]map[string]struct{}
	conns map[string]map[string]struct{}
}

func newRoomSet() *roomSet {
	return &roomSet{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]map[string]struct{}),
	}
}

// join adds the connection to the room. Joining twice is a no-op.
func (s *roomSet) join(connID, roomID string) {
	if s.rooms[roomID] == nil {
		s.rooms[roomID] = make(map[string]struct{})
	}
	s.rooms[roomID][connID] = struct{}{}
	if s.conns[connID] == nil {
		s.conns[connID] = make(map[string]struct{})
	}
	s.conns[connID][roomID] = struct{}{}
}

// leave removes the connection from the room. Absent membership is a no-op.
func (s *roomSet) leave(connID, roomID string) {
	if members, ok := s.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(s.rooms, roomID)
		}
	}
	if rooms, ok := s.conns[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(s.conns, connID)
		}
	}
}

// membersExcluding returns the broadcast target set for a sender.
func (s *roomSet) membersExcluding(roomID, connID string) []string {
	members := s.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		if id == connID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// members returns every connection in the room.
func (s *roomSet) members(roomID string) []string {
	members := s.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// leaveAll drops the connection from every room it joined and returns
// the affected room ids.
func (s *roomSet) leaveAll(connID string) []string {
	rooms, ok := s.conns[connID]
	if !ok {
		return nil
	}
	affected := make([]string, 0, len(rooms))
	for roomID := range rooms {
		affected = append(affected, roomID)
		if members, ok := s.rooms[roomID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(s.rooms, roomID)
			}
		}
	}
	delete(s.conns, connID)
	return affected
}
