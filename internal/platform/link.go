package platform

import "fmt"

// MessageLink renders a Discord message jump link.
func MessageLink(guildID, channelID, messageID uint64) string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", guildID, channelID, messageID)
}
