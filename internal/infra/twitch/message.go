package twitch

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ChatMessage is one inbound chat line, normalized for the command router.
// RewardID is set when the message was submitted through a Channel Points
// redemption that requires text input.
type ChatMessage struct {
	Channel     string
	User        string // display name
	Login       string // login name, lowercase
	Text        string
	RewardID    string
	Broadcaster bool
	Moderator   bool
}

// IsPrivileged reports whether the sender may use operator commands.
func (m *ChatMessage) IsPrivileged() bool {
	return m.Broadcaster || m.Moderator
}

// ircMessage is a raw parsed IRC line.
type ircMessage struct {
	tags    map[string]string
	prefix  string
	command string
	params  []string
	text    string
}

// parseLine parses one IRC line in the IRCv3 tagged format Twitch speaks:
//
//	@tags :prefix COMMAND params :trailing
func parseLine(line string) (ircMessage, error) {
	msg := ircMessage{}
	rest := strings.TrimSuffix(line, "\r")

	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, " ")
		if idx < 0 {
			return msg, errors.Newf("malformed IRC line: %q", line)
		}
		msg.tags = parseTags(rest[1:idx])
		rest = rest[idx+1:]
	}

	if strings.HasPrefix(rest, ":") {
		idx := strings.Index(rest, " ")
		if idx < 0 {
			return msg, errors.Newf("malformed IRC line: %q", line)
		}
		msg.prefix = rest[1:idx]
		rest = rest[idx+1:]
	}

	if idx := strings.Index(rest, " :"); idx >= 0 {
		msg.text = rest[idx+2:]
		rest = rest[:idx]
	} else if strings.HasPrefix(rest, ":") {
		msg.text = rest[1:]
		rest = ""
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return msg, errors.Newf("IRC line without command: %q", line)
	}
	msg.command = fields[0]
	msg.params = fields[1:]
	return msg, nil
}

// parseTags splits an IRCv3 tag block and unescapes values.
func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(value)
	}
	return tags
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		i++
		if i >= len(value) {
			break
		}
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// nick extracts the login name from an IRC prefix (nick!user@host).
func (m *ircMessage) nick() string {
	if idx := strings.Index(m.prefix, "!"); idx >= 0 {
		return m.prefix[:idx]
	}
	return m.prefix
}

// hasBadge checks the badges tag (badge/version pairs, comma separated).
func (m *ircMessage) hasBadge(name string) bool {
	for _, badge := range strings.Split(m.tags["badges"], ",") {
		badge, _, _ = strings.Cut(badge, "/")
		if badge == name {
			return true
		}
	}
	return false
}

// chatMessage converts a PRIVMSG into the router-facing form.
func (m *ircMessage) chatMessage() ChatMessage {
	login := m.nick()
	display := m.tags["display-name"]
	if display == "" {
		display = login
	}

	channel := ""
	if len(m.params) > 0 {
		channel = strings.TrimPrefix(m.params[0], "#")
	}

	return ChatMessage{
		Channel:     channel,
		User:        display,
		Login:       login,
		Text:        m.text,
		RewardID:    m.tags["custom-reward-id"],
		Broadcaster: m.hasBadge("broadcaster"),
		Moderator:   m.hasBadge("moderator") || m.tags["mod"] == "1",
	}
}
