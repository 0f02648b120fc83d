package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeTriggers(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := w.Header().Get("HX-Trigger")
	if raw == "" {
		t.Fatal("HX-Trigger header not set")
	}
	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v (%s)", err, raw)
	}
	return events
}

func TestHTMXResponse_Fragment(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Status(http.StatusCreated).Fragment("<li>Groceries</li>").Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "<li>Groceries</li>" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestHTMXResponse_Triggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerExpenseDeleted(42).
		TriggerBudgetRefresh().
		TriggerNotificationsChanged(3).
		TriggerSuccessNotification("Expense deleted.").
		Write(w)

	events := decodeTriggers(t, w)
	want := map[string]string{
		"expense:deleted":       `{"id":42}`,
		"budget:refresh":        `{}`,
		"notifications:changed": `{"unread":3}`,
	}
	for name, detail := range want {
		if got := string(events[name]); got != detail {
			t.Errorf("%s = %s, want %s", name, got, detail)
		}
	}

	var toast struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(events["show-notification"], &toast); err != nil {
		t.Fatalf("show-notification: %v", err)
	}
	if toast.Type != "success" || toast.Message != "Expense deleted." || toast.Duration != 3000 {
		t.Errorf("toast = %+v", toast)
	}
}

func TestHTMXResponse_NoTriggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Redirect("/login").Write(w)

	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent when no events were queued")
	}
	if got := w.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestToastDurations(t *testing.T) {
	tests := []struct {
		kind Toast
		want int
	}{
		{ToastSuccess, 3000},
		{ToastInfo, 3000},
		{ToastWarning, 6000},
		{ToastError, 6000},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHTMXResponse().TriggerToast(tt.kind, "Sync finished").Write(w)

			var toast struct {
				Type     string `json:"type"`
				Duration int    `json:"duration"`
			}
			if err := json.Unmarshal(decodeTriggers(t, w)["show-notification"], &toast); err != nil {
				t.Fatal(err)
			}
			if toast.Type != string(tt.kind) || toast.Duration != tt.want {
				t.Errorf("toast = %+v, want type %s duration %d", toast, tt.kind, tt.want)
			}
		})
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		resp       *HTMXResponse
		wantStatus int
		wantText   string
	}{
		{"bad request", BadRequestError("Invalid request format"), http.StatusBadRequest, "Invalid request format"},
		{"over budget", ErrorResponse(http.StatusUnprocessableEntity, "Budget exceeded"), http.StatusUnprocessableEntity, "Budget exceeded"},
		{"escaped", BadRequestError("<script>alert('x')</script>"), http.StatusBadRequest, "&lt;script&gt;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.resp.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := w.Body.String()
			if !strings.HasPrefix(body, `<div class="alert alert-error"`) || !strings.Contains(body, tt.wantText) {
				t.Errorf("body = %q, want alert containing %q", body, tt.wantText)
			}
			if strings.Contains(body, "<script>") {
				t.Error("message was not escaped")
			}
		})
	}
}
