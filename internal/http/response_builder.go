package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponse collects HX-Trigger events and an optional HTML fragment
// for the partial requests the pages issue (bell badge, inline deletes,
// sync buttons, sheet export).
type HTMXResponse struct {
	status   int
	events   map[string]any
	fragment string
	redirect string
}

func NewHTMXResponse() *HTMXResponse {
	return &HTMXResponse{status: http.StatusOK, events: map[string]any{}}
}

func (b *HTMXResponse) Status(code int) *HTMXResponse {
	b.status = code
	return b
}

// Trigger queues a client event; app.js listens for the names below.
func (b *HTMXResponse) Trigger(name string, detail any) *HTMXResponse {
	b.events[name] = detail
	return b
}

func (b *HTMXResponse) TriggerNotificationsChanged(unread int) *HTMXResponse {
	return b.Trigger("notifications:changed", map[string]int{"unread": unread})
}

func (b *HTMXResponse) TriggerExpenseDeleted(id int64) *HTMXResponse {
	return b.Trigger("expense:deleted", map[string]int64{"id": id})
}

// TriggerBudgetRefresh reloads the budget bar and the dashboard widgets.
func (b *HTMXResponse) TriggerBudgetRefresh() *HTMXResponse {
	return b.Trigger("budget:refresh", struct{}{})
}

// Toast is the style of a transient message. The values match the flash
// kinds so both render with the same classes.
type Toast string

const (
	ToastSuccess Toast = "success"
	ToastError   Toast = "error"
	ToastWarning Toast = "warning"
	ToastInfo    Toast = "info"
)

// toastMillis keeps problems on screen longer than confirmations.
func toastMillis(kind Toast) int {
	if kind == ToastError || kind == ToastWarning {
		return 6000
	}
	return 3000
}

func (b *HTMXResponse) TriggerToast(kind Toast, message string) *HTMXResponse {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": toastMillis(kind),
	})
}

func (b *HTMXResponse) TriggerSuccessNotification(message string) *HTMXResponse {
	return b.TriggerToast(ToastSuccess, message)
}

func (b *HTMXResponse) TriggerErrorNotification(message string) *HTMXResponse {
	return b.TriggerToast(ToastError, message)
}

// Fragment sets the HTML swapped into the target. It is written as is.
func (b *HTMXResponse) Fragment(html string) *HTMXResponse {
	b.fragment = html
	return b
}

// Redirect makes htmx navigate instead of swapping.
func (b *HTMXResponse) Redirect(url string) *HTMXResponse {
	b.redirect = url
	return b
}

func (b *HTMXResponse) Write(w http.ResponseWriter) {
	h := w.Header()
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			h.Set("HX-Trigger", string(raw))
		}
	}
	if b.redirect != "" {
		h.Set("HX-Redirect", b.redirect)
	}
	if b.fragment != "" {
		h.Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(b.status)
	if b.fragment != "" {
		_, _ = w.Write([]byte(b.fragment))
	}
}

// ErrorResponse is an escaped alert fragment with the given status.
func ErrorResponse(status int, message string) *HTMXResponse {
	return NewHTMXResponse().
		Status(status).
		Fragment(`<div class="alert alert-error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

// isHTMX reports whether r was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
