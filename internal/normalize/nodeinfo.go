package normalize

import (
	"strconv"
	"strings"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/potatomesh-ingestd/internal/ids"
)

// cliRoleNames mirrors the dashboard CLI's own role table, consulted before
// falling back to the mesh protobuf User.Role enum. Ported as a static table
// since Go has no equivalent of the original's lazy optional import of a
// sibling CLI package.
var cliRoleNames = map[int32]string{
	0: "CLIENT",
	1: "CLIENT_MUTE",
	2: "ROUTER",
	3: "ROUTER_CLIENT",
	4: "REPEATER",
	5: "TRACKER",
	6: "SENSOR",
	7: "TAK",
	8: "CLIENT_HIDDEN",
	9: "LOST_AND_FOUND",
	10: "TAK_TRACKER",
	11: "ROUTER_LATE",
}

func roleName(raw any) (string, bool) {
	n, ok := ids.CoerceInt(raw)
	if !ok {
		if s, isStr := raw.(string); isStr && s != "" {
			return strings.ToUpper(s), true
		}
		return "", false
	}
	if name, ok := cliRoleNames[int32(n)]; ok {
		return name, true
	}
	if name, ok := meshtastic.Config_DeviceConfig_Role_name[int32(n)]; ok {
		return name, true
	}
	return strconv.FormatInt(n, 10), true
}

// NodeEntry builds the /api/nodes bulk-upsert entry for n, pulling every
// field the dashboard's node entity exposes (num, snr, hopsAway, channel,
// isFavorite, position, deviceMetrics) off the cloned NodeInfo. Shared
// between the live NODEINFO_APP normaliser and the supervisor's initial
// snapshot so both paths carry the same bulk content.
func NodeEntry(n *meshtastic.NodeInfo) map[string]any {
	entry := map[string]any{}
	if n.GetUser() != nil {
		user := n.GetUser()
		userMap := map[string]any{
			"id":        user.GetId(),
			"longName":  user.GetLongName(),
			"shortName": user.GetShortName(),
			"hwModel":   user.GetHwModel().String(),
		}
		if name, ok := roleName(int32(user.GetRole())); ok {
			userMap["role"] = name
		}
		entry["user"] = userMap
	}
	entry["num"] = n.GetNum()
	entry["lastHeard"] = n.GetLastHeard()
	entry["channel"] = int(n.GetChannel())
	if n.GetSnr() != 0 {
		entry["snr"] = n.GetSnr()
	}
	if n.GetHopsAway() != 0 {
		entry["hopsAway"] = n.GetHopsAway()
	}
	if n.GetIsFavorite() {
		entry["isFavorite"] = true
	}
	if n.GetPosition() != nil {
		if m, err := protojsonToMap(n.GetPosition()); err == nil {
			entry["position"] = m
		}
	}
	if n.GetDeviceMetrics() != nil {
		if m, err := protojsonToMap(n.GetDeviceMetrics()); err == nil {
			entry["deviceMetrics"] = m
		}
	}
	return entry
}

// NodeInfo normalises NODEINFO_APP packets into /api/nodes at priority 50.
// The body shape is keyed by canonical node id, matching the dashboard's
// bulk-upsert contract.
func NodeInfo(v *View) (Record, DropReason) {
	var user *meshtastic.User
	var nodeInfo meshtastic.NodeInfo
	var haveNodeInfo bool
	if v.Packet.GetDecoded() != nil {
		user = &meshtastic.User{}
		if err := proto.Unmarshal(v.Packet.GetDecoded().GetPayload(), user); err != nil {
			// Fall back to a bare User wrapping whatever NodeInfo parses.
			if err2 := proto.Unmarshal(v.Packet.GetDecoded().GetPayload(), &nodeInfo); err2 == nil {
				user = nodeInfo.GetUser()
				haveNodeInfo = true
			} else {
				user = nil
			}
		}
	}

	nodeID := ""
	if user != nil {
		if id, ok := ids.CanonicalNodeID(user.GetId()); ok {
			nodeID = id
		}
	}
	if nodeID == "" {
		nodeID = v.FromID
	}
	if nodeID == "" {
		return Record{}, DropUnresolvableNodeID
	}

	decodedUser, _ := ids.First(v.Decoded, "user")
	decodedUserMap, _ := decodedUser.(map[string]any)
	protoUserMap := map[string]any{}
	if user != nil {
		protoUserMap["id"] = user.GetId()
		protoUserMap["longName"] = user.GetLongName()
		protoUserMap["shortName"] = user.GetShortName()
		protoUserMap["hwModel"] = user.GetHwModel().String()
		if raw, ok := ids.First(map[string]any{"role": int32(user.GetRole())}, "role"); ok {
			if name, ok := roleName(raw); ok {
				protoUserMap["role"] = name
			}
		}
	}
	mergedUser := ids.MergeMaps(decodedUserMap, protoUserMap)

	lastHeard := v.RxTime
	if lh, ok := ids.First(v.Decoded, "lastHeard"); ok {
		if n, ok := ids.CoerceInt(lh); ok && n > lastHeard {
			lastHeard = n
		}
	}

	entry := map[string]any{
		"user":      mergedUser,
		"lastHeard": lastHeard,
	}
	if haveNodeInfo {
		for k, val := range NodeEntry(&nodeInfo) {
			if k == "user" || k == "lastHeard" {
				continue // already merged above, decoded+proto user wins
			}
			entry[k] = val
		}
	}
	if v.SNR != nil {
		entry["snr"] = *v.SNR
	}
	if v.HopLimit != nil {
		entry["hopsAway"] = *v.HopLimit
	}
	entry["channel"] = v.Channel
	// position/deviceMetrics have no source on this path: a NODEINFO_APP
	// payload decodes to a bare User (or, on the fallback branch, the
	// NodeInfo fields already merged in via NodeEntry above) — the protobuf
	// User message itself carries neither.

	body := map[string]any{nodeID: entry}
	return Record{Path: "/api/nodes", Priority: 50, Body: body}, DropNone
}
