package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNew_EmptyToken(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New with empty token should return error")
	}
}

func TestNew_Token(t *testing.T) {
	m, err := New("abc")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.session.Token != "Bot abc" {
		t.Errorf("token = %q, want %q", m.session.Token, "Bot abc")
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	if !isNotFound(notFound) {
		t.Error("404 should be not found")
	}
	if isNotFound(forbidden) {
		t.Error("403 should not be not found")
	}
	if isNotFound(errors.New("network")) {
		t.Error("plain error should not be not found")
	}
}
