package normalize

import (
	"strings"

	"github.com/rabarar/potatomesh-ingestd/internal/ids"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
)

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" || s == "0" || s == "false" || s == "no" {
			return false
		}
		return true
	default:
		return true
	}
}

// Text normalises TEXT_MESSAGE_APP / REACTION_APP packets into the
// /api/messages record at priority 10.
func Text(v *View, channels *meshmeta.Table) (Record, DropReason) {
	if !v.HasID {
		return Record{}, DropMissingPacketID
	}

	text, hasText := ids.First(v.Decoded, "payload.text", "text", "data.text")
	encryptedVal, _ := ids.First(v.Decoded, "payload.encrypted", "encrypted")
	encrypted := truthy(encryptedVal) || v.Encrypted

	replyID, hasReply := ids.First(v.Decoded, "replyId", "reply_id")
	emoji, hasEmoji := ids.First(v.Decoded, "emoji")
	isReaction := (hasReply && hasEmoji) || v.PortNum == "REACTION_APP"

	if v.PortNum != "" && v.PortNum != "TEXT_MESSAGE_APP" && v.PortNum != "REACTION_APP" && !isReaction {
		return Record{}, DropUnsupportedPort
	}

	if v.Channel == 0 && !encrypted && !isReaction && v.ToID != "" && v.ToID != "^all" {
		return Record{}, DropSkippedDirectMessage
	}

	if !hasText && !encrypted && !hasReply && !hasEmoji {
		return Record{}, DropNoMessagePayload
	}

	body := map[string]any{
		"id":       v.ID,
		"rx_time":  v.RxTime,
		"rx_iso":   ids.ISO(v.RxTime),
		"from_id":  v.FromID,
		"to_id":    v.ToID,
		"channel":  v.Channel,
		"portnum":  v.PortNum,
	}
	if hasText {
		body["text"] = text
	}
	body["encrypted"] = encrypted
	if v.SNR != nil {
		body["snr"] = *v.SNR
	}
	if v.RSSI != nil {
		body["rssi"] = *v.RSSI
	}
	if v.HopLimit != nil {
		body["hop_limit"] = *v.HopLimit
	}
	if hasReply {
		body["reply_id"] = replyID
	}
	if hasEmoji {
		body["emoji"] = emoji
	}
	if !encrypted {
		if name, ok := channels.Name(v.Channel); ok {
			body["channel_name"] = name
		}
	}

	return Record{Path: "/api/messages", Priority: 10, Body: body}, DropNone
}
