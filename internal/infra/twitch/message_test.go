package twitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_TaggedPrivmsg(t *testing.T) {
	line := `@badges=broadcaster/1,subscriber/0;display-name=StreamerName;mod=0 :streamername!streamername@streamername.tmi.twitch.tv PRIVMSG #streamername :!queue`

	msg, err := parseLine(line)
	require.NoError(t, err)

	assert.Equal(t, "PRIVMSG", msg.command)
	assert.Equal(t, []string{"#streamername"}, msg.params)
	assert.Equal(t, "!queue", msg.text)
	assert.Equal(t, "streamername", msg.nick())
	assert.Equal(t, "StreamerName", msg.tags["display-name"])
	assert.True(t, msg.hasBadge("broadcaster"))
	assert.False(t, msg.hasBadge("moderator"))
}

func TestParseLine_Ping(t *testing.T) {
	msg, err := parseLine("PING :tmi.twitch.tv")
	require.NoError(t, err)

	assert.Equal(t, "PING", msg.command)
	assert.Equal(t, "tmi.twitch.tv", msg.text)
}

func TestParseLine_Numeric(t *testing.T) {
	msg, err := parseLine(":tmi.twitch.tv 001 botname :Welcome, GLHF!")
	require.NoError(t, err)

	assert.Equal(t, "001", msg.command)
	assert.Equal(t, []string{"botname"}, msg.params)
	assert.Equal(t, "Welcome, GLHF!", msg.text)
}

func TestParseLine_Malformed(t *testing.T) {
	_, err := parseLine("")
	assert.Error(t, err)

	_, err = parseLine("@tags-with-no-command")
	assert.Error(t, err)
}

func TestParseTags_Unescaping(t *testing.T) {
	tags := parseTags(`system-msg=10\sraiders\sfrom\sChannel;emotes=;flags=`)
	assert.Equal(t, "10 raiders from Channel", tags["system-msg"])
	assert.Equal(t, "", tags["emotes"])

	tags = parseTags(`key=semi\:colon\\slash`)
	assert.Equal(t, `semi;colon\slash`, tags["key"])
}

func TestChatMessage_Redemption(t *testing.T) {
	line := `@badges=;custom-reward-id=abc-123-def;display-name=Viewer42;mod=0 :viewer42!viewer42@viewer42.tmi.twitch.tv PRIVMSG #somechannel :never gonna give you up`

	msg, err := parseLine(line)
	require.NoError(t, err)

	chat := msg.chatMessage()
	assert.Equal(t, "somechannel", chat.Channel)
	assert.Equal(t, "Viewer42", chat.User)
	assert.Equal(t, "viewer42", chat.Login)
	assert.Equal(t, "never gonna give you up", chat.Text)
	assert.Equal(t, "abc-123-def", chat.RewardID)
	assert.False(t, chat.IsPrivileged())
}

func TestChatMessage_ModIsPrivileged(t *testing.T) {
	line := `@badges=moderator/1;display-name=ModUser;mod=1 :moduser!moduser@moduser.tmi.twitch.tv PRIVMSG #chan :!forceskip`

	msg, err := parseLine(line)
	require.NoError(t, err)

	chat := msg.chatMessage()
	assert.True(t, chat.Moderator)
	assert.True(t, chat.IsPrivileged())
}

func TestChatMessage_DisplayNameFallsBackToLogin(t *testing.T) {
	line := `@badges=;mod=0 :plainuser!plainuser@plainuser.tmi.twitch.tv PRIVMSG #chan :hello`

	msg, err := parseLine(line)
	require.NoError(t, err)

	chat := msg.chatMessage()
	assert.Equal(t, "plainuser", chat.User)
	assert.Equal(t, "plainuser", chat.Login)
}
