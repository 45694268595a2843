package guildconfig

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"warden/internal/schema"
)

// truthy are the accepted spellings of a true boolean entry.
var truthy = map[string]bool{
	"true": true,
	"t":    true,
	"yes":  true,
	"y":    true,
	"1":    true,
}

// permissionFlags maps the flag names usable in the configuration to
// the Discord permission bit the rest of the bot understands.
var permissionFlags = map[string]int64{
	"administrator":    discordgo.PermissionAdministrator,
	"manage_guild":     discordgo.PermissionManageServer,
	"manage_roles":     discordgo.PermissionManageRoles,
	"manage_channels":  discordgo.PermissionManageChannels,
	"manage_messages":  discordgo.PermissionManageMessages,
	"kick_members":     discordgo.PermissionKickMembers,
	"ban_members":      discordgo.PermissionBanMembers,
	"moderate_members": discordgo.PermissionModerateMembers,
	"mention_everyone": discordgo.PermissionMentionEveryone,
	"view_audit_log":   discordgo.PermissionViewAuditLogs,
}

// PermissionFlagNames returns the accepted permission flag names,
// for autocomplete and error messages.
func PermissionFlagNames() []string {
	names := make([]string, 0, len(permissionFlags))
	for name := range permissionFlags {
		names = append(names, name)
	}
	return names
}

// Coerce converts a stored raw value into the typed representation the
// entry declares. A nil raw value always coerces to nil: absence is
// representable for every type.
//
// The boolean rule is deliberately lenient: anything outside the
// truthy set is false, including garbage. That is a contract, not a
// validation gate, so Validate never rejects a boolean.
func Coerce(raw *string, path string, leaf *schema.Node) (any, error) {
	if raw == nil {
		return nil, nil
	}
	value := *raw

	switch leaf.Type {
	case schema.TypeInt:
		// Base 0 accepts 0x, 0o and 0b prefixes next to plain decimal.
		parsed, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return nil, &InvalidValueError{Path: path, Raw: value, Reason: "not a valid integer"}
		}
		return parsed, nil

	case schema.TypeBool:
		return truthy[strings.ToLower(value)], nil

	case schema.TypeString:
		return value, nil

	case schema.TypeRole, schema.TypeChannel:
		// Snowflakes are plain decimal; no base prefix sniffing here.
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, &InvalidValueError{Path: path, Raw: value, Reason: "not a valid Discord ID"}
		}
		return parsed, nil

	case schema.TypePermission:
		flag, ok := permissionFlags[strings.ToLower(value)]
		if !ok {
			return nil, &InvalidValueError{Path: path, Raw: value, Reason: "not a known permission flag"}
		}
		return flag, nil

	case schema.TypeChoice:
		if !leaf.HasChoice(value) {
			return nil, &InvalidValueError{
				Path:   path,
				Raw:    value,
				Reason: "must be one of: " + strings.Join(leaf.Choices, ", "),
			}
		}
		return value, nil

	default:
		return nil, &UnknownTypeError{Type: leaf.Type}
	}
}
