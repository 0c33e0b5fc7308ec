package handlers

import "LinkHub/service/chat"

// Register installs every viewer event handler on s.
func Register(s *chat.Server) {
	s.Register(
		NewJoinHandler(),
		NewSendHandler(),
		NewForceSyncHandler(),
		NewLogoutHandler(),
		NewReadHandler(),
	)
}
