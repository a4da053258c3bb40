package chat

import (
	"errors"
	"strings"
)

// Commands recognized on a session's inbound stream.
const (
	CommandExit = "/exit"
	CommandList = "/list"
	// CommandMsg includes its trailing space; the prefix match is case-sensitive.
	CommandMsg = "/msg "
)

// Server notices sent back to the offending client only.
const (
	noticeUnquotedUsername = `[SERVER] Invalid private message format. Use /msg <username> <message>.`
	noticeUnterminatedName = `[SERVER] Invalid private message format. Use /msg "username" <message>.`
	noticeEmptyMessage     = `[SERVER] Message cannot be empty.`
	noticeNotOnline        = `[SERVER] User %s is not online.`
	noticeOnlineUsers      = `[SERVER] Online users: `
	noticeTooFast          = `[SERVER] You are sending messages too fast.`
)

var (
	// ErrMissingOpeningQuote is returned when the username is not wrapped in double quotes.
	ErrMissingOpeningQuote = errors.New("private message: username must start with a double quote")
	// ErrMissingClosingQuote is returned when the quoted username is never terminated.
	ErrMissingClosingQuote = errors.New("private message: username is missing its closing quote")
	// ErrEmptyMessage is returned when nothing follows the quoted username.
	ErrEmptyMessage = errors.New("private message: message is empty")
)

// PrivateMessage is a parsed /msg command.
type PrivateMessage struct {
	To   string
	Text string
}

// ParsePrivateMessage parses `/msg "<username>" <message>`. The line must
// already carry the CommandMsg prefix.
func ParsePrivateMessage(line string) (PrivateMessage, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, CommandMsg))

	if !strings.HasPrefix(rest, `"`) {
		return PrivateMessage{}, ErrMissingOpeningQuote
	}

	end := strings.IndexByte(rest[1:], '"')
	if end == -1 {
		return PrivateMessage{}, ErrMissingClosingQuote
	}
	end++

	pm := PrivateMessage{
		To:   rest[1:end],
		Text: strings.TrimSpace(rest[end+1:]),
	}
	if pm.Text == "" {
		return PrivateMessage{}, ErrEmptyMessage
	}
	return pm, nil
}

// parseErrorNotice maps a ParsePrivateMessage error to the line shown to the sender.
func parseErrorNotice(err error) string {
	switch {
	case errors.Is(err, ErrMissingOpeningQuote):
		return noticeUnquotedUsername
	case errors.Is(err, ErrMissingClosingQuote):
		return noticeUnterminatedName
	case errors.Is(err, ErrEmptyMessage):
		return noticeEmptyMessage
	default:
		return noticeUnquotedUsername
	}
}
