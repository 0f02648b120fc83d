package http

import (
	"net/http"

	"finsight/internal/core"
)

type notificationsView struct {
	Items      []core.Notification
	UnreadOnly bool
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Notifications", "notifications")
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("filter") == "unread"
	items, err := s.svc.Notifications.List(r.Context(), userID(r), unreadOnly)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	p.Data = notificationsView{Items: items, UnreadOnly: unreadOnly}
	s.render(w, r, http.StatusOK, "notifications.html", p)
}

// notificationsChanged answers a notification mutation with the new unread
// count for htmx, or a redirect back to the list.
func (s *Server) notificationsChanged(w http.ResponseWriter, r *http.Request, msg string) {
	if isHTMX(r) {
		n, err := s.svc.Notifications.UnreadCount(r.Context(), userID(r))
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		NewHTMXResponse().TriggerNotificationsChanged(n).Write(w)
		return
	}
	if msg == "" {
		http.Redirect(w, r, "/notifications", http.StatusSeeOther)
		return
	}
	redirectWithFlash(w, r, "/notifications", "success", msg)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notifications.MarkAllRead(r.Context(), userID(r)); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.notificationsChanged(w, r, "All notifications marked as read.")
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.svc.Notifications.MarkRead(r.Context(), userID(r), id); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.notificationsChanged(w, r, "")
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.svc.Notifications.Delete(r.Context(), userID(r), id); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.notificationsChanged(w, r, "Notification deleted.")
}

func (s *Server) handleAPIUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Notifications.UnreadCount(r.Context(), userID(r))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}
